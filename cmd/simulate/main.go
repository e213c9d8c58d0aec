package main

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/playback"
	"github.com/xaionaro-go/audiosync/pkg/player/simulated"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/pearson"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"github.com/xaionaro-go/audiosync/pkg/syncstate/storage/memory"
	"github.com/xaionaro-go/audiosync/pkg/waveform/synthetic"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	delay := pflag.Float64("delay", -3.5, "the true offset of the source B relative to the source A, in seconds")
	mediaDuration := pflag.Float64("media-duration", 60, "duration of both sources, in seconds")
	runDuration := pflag.Duration("run-duration", 10*time.Second, "for how long to play")
	rate := pflag.Float64("rate", 1.01, "playback speed of the secondary player relative to the primary one")
	seekTo := pflag.Float64("seek", 0, "seek to this global time in the middle of the run")
	seed := pflag.Int64("seed", 1, "seed of the synthetic signal")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	a, b := synthetic.Pair(synthetic.Params{
		DurationSeconds: *mediaDuration,
		SampleRate:      1000,
		DelaySeconds:    *delay,
		SNRdB:           20,
		ToneHz:          7.3,
		Seed:            *seed,
	})
	estimator, err := pearson.NewSyncer(pearson.DefaultConfig(), progress.Logger{})
	assertNoError(err)
	r, err := estimator.Estimate(ctx, a, b)
	assertNoError(err)
	logger.Infof(ctx, "estimated offset: %.4fs (true: %.4fs), confidence %.3f", r.OffsetSeconds, *delay, r.Confidence)

	manager := syncstate.NewManager(nil, memory.New(), "simulation")
	defer manager.Wait()
	manager.ApplyAnalysis(ctx, r)

	primary := simulated.New("A", *mediaDuration)
	secondary := simulated.New("B", *mediaDuration)
	secondary.SetRate(*rate)
	primary.MarkReady()
	secondary.MarkReady()

	session, err := playback.NewSession(ctx, playback.DefaultConfig(), manager.Holder, primary, secondary)
	assertNoError(err)
	defer session.Close()

	ctx, cancelFn := context.WithTimeout(ctx, *runDuration)
	defer cancelFn()

	observability.Go(ctx, func() {
		corrections := 0
		for tick := range session.Ticks() {
			if tick.Corrected[1] {
				corrections++
				logger.Infof(ctx, "correction #%d: %s", corrections, tick)
				continue
			}
			logger.Tracef(ctx, "%s", tick)
		}
	})

	if pflag.Lookup("seek").Changed {
		observability.Go(ctx, func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(*runDuration / 2):
			}
			if err := session.Seek(ctx, *seekTo); err != nil {
				logger.Errorf(ctx, "unable to seek to %v: %v", *seekTo, err)
			}
		})
	}

	assertNoError(session.Play(ctx))

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			report(ctx, primary, secondary, manager.Holder.Load())
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			primary.Advance(dt)
			secondary.Advance(dt)
		}
	}
}

func report(
	ctx context.Context,
	primary, secondary *simulated.Player,
	state syncstate.State,
) {
	timeA, err := primary.CurrentTime()
	assertNoError(err)
	timeB, err := secondary.CurrentTime()
	assertNoError(err)
	logger.Infof(ctx, "A: %.3fs, B: %.3fs, expected B: %.3fs; %s", timeA, timeB, timeA+state.OffsetSeconds, state)
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/analysis"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/config"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/progress/bar"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/fft"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/pearson"
	streamgccphat "github.com/xaionaro-go/audiosync/pkg/syncerstream/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"github.com/xaionaro-go/audiosync/pkg/syncstate/storage/memory"
	"github.com/xaionaro-go/audiosync/pkg/syncstate/storage/sqlite"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
	_ "github.com/xaionaro-go/audiosync/pkg/waveform/implementations/ffmpeg"
	_ "github.com/xaionaro-go/audiosync/pkg/waveform/implementations/flac"
	_ "github.com/xaionaro-go/audiosync/pkg/waveform/implementations/mp3"
	_ "github.com/xaionaro-go/audiosync/pkg/waveform/implementations/vorbis"
	_ "github.com/xaionaro-go/audiosync/pkg/waveform/implementations/wav"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a config file (yaml, toml or json)")
	pflag.String("algorithm", string(config.AlgorithmPearson), "offset estimator: pearson, gccphat or fft")
	pflag.Bool("verify-drift", false, "verify the estimated offset along the whole recordings")
	pflag.Int("sample-rate", waveform.DefaultSampleRate, "sample rate of the extracted waveforms")
	pflag.String("db", "", "SQLite database to keep the sync state in (not persisted if empty)")
	sessionKey := pflag.String("session", "", "key of the sync state in the database (derived from the paths if empty)")
	setOffset := pflag.Float64("set-offset", 0, "do not analyze, just set the offset (in seconds) manually")
	reset := pflag.Bool("reset", false, "do not analyze, just reset the sync state")
	dump := pflag.Bool("dump", false, "dump the whole analysis result to stderr")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic("expected exactly two positional arguments: paths to the source A and to the source B")
	}
	sourceA, sourceB := pflag.Arg(0), pflag.Arg(1)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	cfg, err := config.Load(*configPath, map[string]*pflag.Flag{
		"analysis.algorithm":    pflag.Lookup("algorithm"),
		"analysis.verify_drift": pflag.Lookup("verify-drift"),
		"extractor.sample_rate": pflag.Lookup("sample-rate"),
		"storage.db_path":       pflag.Lookup("db"),
	})
	assertNoError(err)

	if *sessionKey == "" {
		*sessionKey = deriveSessionKey(sourceA, sourceB)
	}
	logger.Debugf(ctx, "session key: %s", *sessionKey)

	var store syncstate.Store = memory.New()
	if cfg.Storage.DBPath != "" {
		sqliteStore, err := sqlite.New(cfg.Storage.DBPath)
		assertNoError(err)
		defer sqliteStore.Close()
		store = sqliteStore
	}
	manager := syncstate.NewManager(nil, store, *sessionKey)
	defer manager.Wait()

	state, err := manager.Load(ctx)
	assertNoError(err)
	logger.Infof(ctx, "the stored sync state: %s", state)

	switch {
	case *reset:
		printState(manager.Reset(ctx))
		return
	case pflag.Lookup("set-offset").Changed:
		state, err := manager.SetManualOffset(ctx, *setOffset)
		assertNoError(err)
		printState(state)
		return
	}

	extractor, err := waveform.NewExtractorAuto(ctx, types.SampleRate(cfg.Extractor.SampleRate))
	assertNoError(err)

	progressBar := bar.New(os.Stderr)
	analyzer := analysis.New(extractor, newSyncerFactory(cfg.Analysis), progress.Multi{progressBar, progress.Logger{}})
	analyzer.LowConfidence = cfg.Analysis.LowConfidence
	if cfg.Analysis.VerifyDrift {
		analyzer.Verifier = &streamgccphat.Factory{
			MinFreq: cfg.Analysis.MinFreq,
			MaxFreq: cfg.Analysis.MaxFreq,
		}
		analyzer.VerifyChunkSize = cfg.Analysis.VerifyChunkSize
	}

	r, state, err := analyzer.RunAndApply(ctx, manager, sourceA, sourceB)
	assertNoError(progressBar.Close())
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		fmt.Fprintln(os.Stderr, analysis.UserFacingMessage)
		manager.Wait()
		belt.Flush(ctx)
		os.Exit(1)
	}

	for _, d := range r.Drifts {
		logger.Infof(ctx, "at %8.2fs the residual delay is %+.4fs (confidence %.2f)", d.AtSeconds, d.DelaySeconds, d.Confidence)
	}
	if *dump {
		spew.Fdump(os.Stderr, r.Analysis)
	}
	printState(state)
}

func newSyncerFactory(cfg config.AnalysisConfig) analysis.SyncerFactory {
	return func(sink progress.Sink) (syncer.Syncer, error) {
		switch cfg.Algorithm {
		case config.AlgorithmPearson:
			return pearson.NewSyncer(cfg.Pearson, sink)
		case config.AlgorithmGCCPHAT:
			s := gccphat.NewSyncer(cfg.Pearson.MaxOffsetSeconds, sink)
			s.MinFreq, s.MaxFreq = cfg.MinFreq, cfg.MaxFreq
			return s, nil
		case config.AlgorithmFFT:
			return fft.NewSyncer(cfg.Pearson.MaxOffsetSeconds, cfg.Pearson.AnalysisLengthSeconds, sink), nil
		default:
			return nil, fmt.Errorf("unknown algorithm '%s'", cfg.Algorithm)
		}
	}
}

// deriveSessionKey gives the same key to the same pair of sources.
func deriveSessionKey(sourceA, sourceB string) string {
	name := make([]byte, 0, len(sourceA)+len(sourceB)+1)
	for idx, source := range []string{sourceA, sourceB} {
		if abs, err := filepath.Abs(source); err == nil {
			source = abs
		}
		if idx > 0 {
			name = append(name, 0)
		}
		name = append(name, source...)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, name).String()
}

func printState(state syncstate.State) {
	b, err := json.Marshal(state)
	assertNoError(err)
	fmt.Println(string(b))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/pearson"
	streamgccphat "github.com/xaionaro-go/audiosync/pkg/syncerstream/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"github.com/xaionaro-go/audiosync/pkg/syncstate/storage/memory"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
	"github.com/xaionaro-go/audiosync/pkg/waveform/implementations/wav"
	"github.com/xaionaro-go/audiosync/pkg/waveform/synthetic"
)

type fakeExtractor map[string]*waveform.Data

func (e fakeExtractor) Extract(_ context.Context, source string) (*waveform.Data, error) {
	data, ok := e[source]
	if !ok {
		return nil, &waveform.DecodeError{Source: source, Err: fmt.Errorf("no such file")}
	}
	return data, nil
}

type recordedProgress struct {
	stage   string
	percent float64
}

type recorder struct {
	locker   sync.Mutex
	progress []recordedProgress
	infos    []string
	warns    []string
}

func (r *recorder) Progress(_ context.Context, stage string, percent float64) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.progress = append(r.progress, recordedProgress{stage: stage, percent: percent})
}

func (r *recorder) Info(_ context.Context, message string) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.infos = append(r.infos, message)
}

func (r *recorder) Warn(_ context.Context, message string) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.warns = append(r.warns, message)
}

func newPearson(sink progress.Sink) (syncer.Syncer, error) {
	return pearson.NewSyncer(pearson.DefaultConfig(), sink)
}

func TestAnalyzer_RunAndApply(t *testing.T) {
	ctx := context.Background()
	a, b := synthetic.Pair(synthetic.Params{
		DurationSeconds: 60,
		SampleRate:      1000,
		DelaySeconds:    2.37,
		SNRdB:           20,
		ToneHz:          7.3,
		Seed:            1,
	})
	rec := &recorder{}
	analyzer := New(fakeExtractor{"a.mp4": a, "b.mp4": b}, newPearson, rec)

	store := memory.New()
	manager := syncstate.NewManager(nil, store, "session")
	r, state, err := analyzer.RunAndApply(ctx, manager, "a.mp4", "b.mp4")
	require.NoError(t, err)
	manager.Wait()

	assert.InDelta(t, 2.37, r.Analysis.OffsetSeconds, 0.01)
	assert.Equal(t, r.Analysis.OffsetSeconds, state.OffsetSeconds)
	assert.True(t, state.IsAnalyzed)
	require.NotNil(t, state.Confidence)
	assert.Equal(t, r.Analysis.Confidence, *state.Confidence)
	assert.Equal(t, 1, store.Saves())
	assert.Nil(t, r.Drifts)

	require.NotEmpty(t, rec.progress)
	assert.Equal(t, recordedProgress{stage: progress.StageExtractReference, percent: 0}, rec.progress[0])
	assert.Equal(t, recordedProgress{stage: progress.StageDone, percent: 100}, rec.progress[len(rec.progress)-1])
	stages := map[string]bool{}
	for idx, p := range rec.progress {
		stages[p.stage] = true
		if idx > 0 {
			assert.GreaterOrEqual(t, p.percent, rec.progress[idx-1].percent)
		}
	}
	for _, stage := range []string{
		progress.StageExtractComparison,
		progress.StageCoarse,
		progress.StageRefine,
		progress.StageFine,
	} {
		assert.True(t, stages[stage], stage)
	}
	assert.Len(t, rec.infos, 1)
	assert.Empty(t, rec.warns)
}

func TestAnalyzer_Failure(t *testing.T) {
	ctx := context.Background()
	a, _ := synthetic.Pair(synthetic.Params{
		DurationSeconds: 5,
		SampleRate:      1000,
		Seed:            1,
	})
	rec := &recorder{}
	analyzer := New(fakeExtractor{"a.mp4": a}, newPearson, rec)

	store := memory.New()
	previous, err := syncstate.FromManualOffset(1.5)
	require.NoError(t, err)
	manager := syncstate.NewManager(syncstate.NewHolder(previous), store, "session")

	_, state, err := analyzer.RunAndApply(ctx, manager, "a.mp4", "missing.mp4")
	require.Error(t, err)
	manager.Wait()

	assert.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, waveform.ErrAudioDecode)
	var analysisErr *Error
	require.True(t, errors.As(err, &analysisErr))
	assert.Equal(t, progress.StageExtractComparison, analysisErr.Stage)
	assert.Contains(t, err.Error(), UserFacingMessage)

	assert.True(t, previous.Equal(state), "the previous state is kept")
	assert.Zero(t, manager.Holder.Version())
	assert.Zero(t, store.Saves())
	assert.Len(t, rec.warns, 1)
}

func TestAnalyzer_MismatchedSampleRates(t *testing.T) {
	ctx := context.Background()
	a := synthetic.Silence(5, 1000)
	b := synthetic.Silence(5, 2000)
	analyzer := New(fakeExtractor{"a": a, "b": b}, newPearson, nil)

	_, err := analyzer.Run(ctx, "a", "b")
	require.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, syncer.ErrInvalidInput)
}

func TestAnalyzer_LowConfidence(t *testing.T) {
	ctx := context.Background()
	a := synthetic.Silence(30, 1000)
	rec := &recorder{}
	analyzer := New(fakeExtractor{"a": a, "b": a}, newPearson, rec)

	r, err := analyzer.Run(ctx, "a", "b")
	require.NoError(t, err)
	assert.Zero(t, r.Analysis.OffsetSeconds)
	assert.Zero(t, r.Analysis.Confidence)
	assert.Len(t, rec.warns, 1)
}

func TestAnalyzer_Verify(t *testing.T) {
	ctx := context.Background()
	const sampleRate = 8000
	a, b := synthetic.Pair(synthetic.Params{
		DurationSeconds: 10,
		SampleRate:      sampleRate,
		DelaySeconds:    2.37,
		Seed:            3,
	})
	analyzer := New(
		fakeExtractor{"a": a, "b": b},
		func(sink progress.Sink) (syncer.Syncer, error) {
			return gccphat.NewSyncer(5, sink), nil
		},
		nil,
	)
	analyzer.Verifier = &streamgccphat.Factory{}
	analyzer.VerifyChunkSize = 2048

	r, err := analyzer.Run(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 2.37, r.Analysis.OffsetSeconds, 0.002)
	require.NotEmpty(t, r.Drifts)

	confident := 0
	for _, d := range r.Drifts {
		if d.Confidence <= 0.15 {
			continue
		}
		confident++
		assert.Less(t, math.Abs(d.DelaySeconds), 0.004, "at %v", d.AtSeconds)
	}
	assert.Greater(t, confident, 0)
}

func writeWAV(t *testing.T, path string, d *waveform.Data) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, len(d.Samples))
	for i, v := range d.Samples {
		data[i] = int(math.Round(float64(v) * math.MaxInt16))
	}
	enc := gowav.NewEncoder(f, d.SampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  d.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestAnalyzer_RecordedFiles(t *testing.T) {
	ctx := context.Background()
	const delay = 2.37
	a, b := synthetic.Pair(synthetic.Params{
		DurationSeconds: 60,
		SampleRate:      16000,
		DelaySeconds:    delay,
		SNRdB:           20,
		ToneHz:          7.3,
		Seed:            8,
	})
	dir := t.TempDir()
	pathA, pathB := filepath.Join(dir, "camera-a.wav"), filepath.Join(dir, "camera-b.wav")
	writeWAV(t, pathA, a)
	writeWAV(t, pathB, b)

	rec := &recorder{}
	extractor := waveform.NewExtractor(waveform.DefaultSampleRate, wav.Decoder{})
	r, err := New(extractor, newPearson, rec).Run(ctx, pathA, pathB)
	require.NoError(t, err)
	assert.Equal(t, waveform.DefaultSampleRate, r.Reference.SampleRate)
	assert.InDelta(t, delay, r.Analysis.OffsetSeconds, 0.02)
	assert.Greater(t, r.Analysis.Confidence, 0.7)
	assert.Empty(t, rec.warns)
}

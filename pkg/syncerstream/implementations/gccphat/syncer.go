// Package gccphat implements a streaming drift tracker on top of GCC-PHAT.
//
// The comparison stream is cut into overlapping windows, and each window is
// located within a neighborhood of the reference stream. While the results
// are confident, the neighborhood is narrowed around the last found delay
// (Track mode); otherwise the whole configured range is searched (Search mode).
package gccphat

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/mjibson/go-dsp/fft"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	syncergccphat "github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncerstream"
)

const (
	defaultWindowDuration = 400 * time.Millisecond
	defaultOverlapFactor  = 0.5
	defaultMaxLag         = time.Second

	// For a window of N whitened bins the expected peak magnitude of
	// uncorrelated noise is about 1/sqrt(N); the thresholds are relative
	// to this floor.

	// ThresholdSearchMultiplier is the confidence required to switch from
	// Search mode to Track mode.
	ThresholdSearchMultiplier = 10.0

	// ThresholdTrackMultiplier is the confidence required to stay in Track mode.
	ThresholdTrackMultiplier = 5.0
)

type mode int

const (
	modeSearch = mode(iota)
	modeTrack
)

func (m mode) String() string {
	switch m {
	case modeSearch:
		return "search"
	case modeTrack:
		return "track"
	default:
		return fmt.Sprintf("unknown_mode_%d", int(m))
	}
}

type trackState struct {
	comp ring

	// global sample index of the last analyzed window
	lastAnalysisPos int64

	fcomp []complex128

	// delay (in samples) of the last confident window
	lastDelay float64

	mode                mode
	consecutiveHighConf int
}

type Syncer struct {
	sampleRate int
	windowSize int
	hopSize    int
	maxLag     int
	minFreq    float64
	maxFreq    float64

	ref        ring
	hannWindow []float64
	fref       []complex128
	tracks     map[int]*trackState
	lock       sync.Mutex
}

var _ syncerstream.SyncerStream = (*Syncer)(nil)

type Factory struct {
	WindowSize int
	HopSize    int
	MaxLag     int
	MinFreq    float64
	MaxFreq    float64
}

var _ syncerstream.Factory = (*Factory)(nil)

func (f *Factory) NewSyncer(sampleRate int) (syncerstream.SyncerStream, error) {
	return NewSyncer(sampleRate, f.WindowSize, f.HopSize, f.MaxLag, f.MinFreq, f.MaxFreq)
}

// NewSyncer initializes a new streaming GCC-PHAT syncer.
//
// Arguments:
// - sampleRate: The sample rate of both streams (mandatory).
// - windowSize: The size of the snippet to correlate. Defaults to ~400ms if <= 0.
// - hopSize: The distance between windows. Defaults to 50% overlap if <= 0.
// - maxLag: The search range. Defaults to 1 second if <= 0.
// - minFreq, maxFreq: Band limiting in Hz. Defaults to 100Hz-12000Hz if both 0.
func NewSyncer(
	sampleRate int,
	windowSize, hopSize, maxLag int,
	minFreq, maxFreq float64,
) (*Syncer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: got %d", sampleRate)
	}

	if windowSize <= 0 {
		windowSize = 1
		for windowSize < int(float64(sampleRate)*defaultWindowDuration.Seconds()) {
			windowSize <<= 1
		}
	}
	if windowSize < 2 {
		return nil, fmt.Errorf("window size is too small: %d", windowSize)
	}
	if hopSize <= 0 {
		hopSize = int(float64(windowSize) * defaultOverlapFactor)
	}
	if maxLag <= 0 {
		maxLag = int(float64(sampleRate) * defaultMaxLag.Seconds())
	}
	if minFreq == 0 && maxFreq == 0 {
		minFreq = 100
		maxFreq = 12000
	}

	hann := make([]float64, windowSize)
	for i := 0; i < windowSize; i++ {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowSize-1)))
	}
	bufferSize := (maxLag + windowSize) * 4
	s := &Syncer{
		sampleRate: sampleRate,
		windowSize: windowSize,
		hopSize:    hopSize,
		maxLag:     maxLag,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
		ref:        newRing(bufferSize),
		hannWindow: hann,
		tracks:     make(map[int]*trackState),
	}
	s.fref = make([]complex128, s.fftSize(maxLag))
	return s, nil
}

// fftSize fits a window of comparison against windowSize+2*maxLag of reference.
func (s *Syncer) fftSize(maxLag int) int {
	n := 1
	for n < 2*s.windowSize+2*maxLag-1 {
		n <<= 1
	}
	return n
}

func (s *Syncer) Lookahead() int {
	return s.maxLag + s.windowSize
}

func (s *Syncer) getTrackState(trackID int) *trackState {
	ts, ok := s.tracks[trackID]
	if !ok {
		ts = &trackState{
			comp:            newRing(len(s.ref.buf)),
			fcomp:           make([]complex128, len(s.fref)),
			lastAnalysisPos: -int64(s.hopSize),
		}
		s.tracks[trackID] = ts
	}
	return ts
}

func (s *Syncer) PushReference(ctx context.Context, samples []float32) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ref.push(samples)
	return nil
}

// PushComparison processes comparison samples and returns the delays
// measured for every analysis window completed by them.
func (s *Syncer) PushComparison(
	ctx context.Context,
	trackID int,
	samples []float32,
) ([]syncer.ShiftResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ts := s.getTrackState(trackID)
	ts.comp.push(samples)

	var results []syncer.ShiftResult
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		nextPos := ts.lastAnalysisPos + int64(s.hopSize)
		if nextPos+int64(s.windowSize) > ts.comp.count {
			break
		}

		// comp(t) = ref(t - delay), so the window is expected at nextPos - delay
		maxLag := s.maxLag
		searchStart := nextPos
		if ts.mode == modeTrack {
			maxLag = s.windowSize
			searchStart = nextPos - int64(math.Round(ts.lastDelay))
		}
		if searchStart < 0 {
			searchStart = 0
		}
		if searchStart+int64(s.windowSize) > s.ref.count {
			break
		}

		delay, confidence, activeBins, err := s.analyze(ts, nextPos, searchStart, maxLag)
		if err != nil {
			return results, err
		}
		s.updateMode(ctx, trackID, ts, delay, confidence, activeBins)

		results = append(results, syncer.ShiftResult{
			SampleOffset: nextPos,
			Delay:        delay,
			Confidence:   confidence,
		})
		ts.lastAnalysisPos = nextPos
	}
	return results, nil
}

func (s *Syncer) updateMode(
	ctx context.Context,
	trackID int,
	ts *trackState,
	delay, confidence float64,
	activeBins int,
) {
	noiseFloor := 1.0 / math.Sqrt(float64(activeBins))
	thresholdSearch := noiseFloor * ThresholdSearchMultiplier
	thresholdTrack := noiseFloor * ThresholdTrackMultiplier

	prevMode := ts.mode
	switch {
	case confidence > thresholdSearch:
		ts.lastDelay = delay
		ts.consecutiveHighConf++
		// a couple of confident windows in a row are required to lock
		if ts.consecutiveHighConf >= 2 {
			ts.mode = modeTrack
		}
	case ts.mode == modeTrack && confidence > thresholdTrack:
		ts.lastDelay = delay
		ts.consecutiveHighConf++
	case confidence < thresholdTrack:
		ts.mode = modeSearch
		ts.consecutiveHighConf = 0
	}
	if ts.mode != prevMode {
		logger.Debugf(ctx, "track %d: %s -> %s (delay %f, confidence %f)", trackID, prevMode, ts.mode, delay, confidence)
	}
}

// analyze locates the comparison window starting at pos within the
// reference range [searchStart-maxLag, searchStart+windowSize+maxLag) and
// returns the delay of the comparison in the global sample indexes.
func (s *Syncer) analyze(
	ts *trackState,
	pos int64,
	searchStart int64,
	maxLag int,
) (float64, float64, int, error) {
	searchOrigin := searchStart - int64(maxLag)
	searchSamples := s.windowSize + 2*maxLag

	n := min(s.fftSize(maxLag), len(s.fref))
	fref := s.fref[:n]
	fcomp := ts.fcomp[:n]
	clear(fref)
	clear(fcomp)

	for i, w := range s.hannWindow {
		v, _ := ts.comp.at(pos + int64(i))
		fcomp[i] = complex(v*w, 0)
	}

	// the reference that is not available (yet or anymore) stays zero-padded
	for i := range min(searchSamples, n) {
		if v, ok := s.ref.at(searchOrigin + int64(i)); ok {
			fref[i] = complex(v, 0)
		}
	}

	sampleRate := float64(s.sampleRate)
	localDelay, confidence, err := syncergccphat.CrossCorrelate(
		fft.FFT(fref), fft.FFT(fcomp),
		sampleRate, s.minFreq, s.maxFreq, 0,
	)
	if err != nil {
		return 0, 0, 0, err
	}

	// window[i] = snippet[i - localDelay] = ref[searchOrigin + i - localDelay],
	// and window[i] = comp[pos + i], so comp(t) = ref(t - (pos - searchOrigin + localDelay)).
	delay := float64(pos-searchOrigin) + localDelay
	return delay, confidence, syncergccphat.ActiveBins(n, sampleRate, s.minFreq, s.maxFreq), nil
}

func (s *Syncer) Close() error { return nil }

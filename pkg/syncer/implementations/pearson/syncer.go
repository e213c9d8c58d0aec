// Package pearson implements an audio synchronization algorithm based on a
// multi-resolution search for the maximum of the Pearson correlation
// coefficient between two tracks.
//
// The search is done in three passes: a coarse one over the whole allowed
// range of offsets, then a refinement around the best coarse candidate with
// a step of a video frame, and finally a sample-accurate pass around the
// refined candidate.
//
// The coarse and the refine passes correlate amplitude envelopes with one
// envelope sample per coarse step: the correlation peak of wideband audio is
// much narrower than the coarse step, so a grid over the raw samples would
// step over it. The fine pass correlates the raw samples. Each pass starts
// from the best result of the previous one; the fine pass re-scores that
// seed on the raw samples first, and no pass ever ends worse than its seed.
package pearson

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

const (
	PhaseCoarse = "coarse"
	PhaseRefine = "refine"
	PhaseFine   = "fine"

	// how many lags are evaluated between context (and progress) checks
	batchSize = 32
)

type Config struct {
	MaxOffsetSeconds      float64 `mapstructure:"max_offset_seconds"`
	AnalysisLengthSeconds float64 `mapstructure:"analysis_length_seconds"`
	CoarseStepSeconds     float64 `mapstructure:"coarse_step_seconds"`
	RefineRangeSeconds    float64 `mapstructure:"refine_range_seconds"`
	RefineStepSeconds     float64 `mapstructure:"refine_step_seconds"`
	FineRangeSeconds      float64 `mapstructure:"fine_range_seconds"`
}

func DefaultConfig() Config {
	return Config{
		MaxOffsetSeconds:      30,
		AnalysisLengthSeconds: 20,
		CoarseStepSeconds:     0.02,
		RefineRangeSeconds:    2,
		RefineStepSeconds:     1.0 / 30,
		FineRangeSeconds:      0.2,
	}
}

func (cfg Config) Validate() error {
	for _, param := range []struct {
		name  string
		value float64
	}{
		{"max offset", cfg.MaxOffsetSeconds},
		{"analysis length", cfg.AnalysisLengthSeconds},
		{"coarse step", cfg.CoarseStepSeconds},
		{"refine range", cfg.RefineRangeSeconds},
		{"refine step", cfg.RefineStepSeconds},
		{"fine range", cfg.FineRangeSeconds},
	} {
		if !(param.value > 0) || math.IsInf(param.value, 0) {
			return fmt.Errorf("%s must be a positive number: got %v", param.name, param.value)
		}
	}
	return nil
}

// progress range of each pass
var phaseProgress = map[string][2]float64{
	PhaseCoarse: {40, 50},
	PhaseRefine: {50, 80},
	PhaseFine:   {80, 100},
}

var phaseStage = map[string]string{
	PhaseCoarse: progress.StageCoarse,
	PhaseRefine: progress.StageRefine,
	PhaseFine:   progress.StageFine,
}

type Syncer struct {
	Config   Config
	Progress progress.Sink
}

var _ syncer.Syncer = (*Syncer)(nil)

func NewSyncer(cfg Config, progressSink progress.Sink) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Syncer{
		Config:   cfg,
		Progress: progress.OrNoop(progressSink),
	}, nil
}

// Estimate returns the offset of track b relative to track a using the
// default configuration and no progress reporting.
func Estimate(
	ctx context.Context,
	a, b *waveform.Data,
) (syncer.AnalysisResult, error) {
	s := &Syncer{Config: DefaultConfig(), Progress: progress.Noop{}}
	return s.Estimate(ctx, a, b)
}

func (s *Syncer) CalculateShiftBetween(
	ctx context.Context,
	referenceTrack *waveform.Data,
	comparisonTracks ...*waveform.Data,
) ([]syncer.AnalysisResult, error) {
	results := make([]syncer.AnalysisResult, 0, len(comparisonTracks))
	for idx, comparisonTrack := range comparisonTracks {
		r, err := s.Estimate(ctx, referenceTrack, comparisonTrack)
		if err != nil {
			return nil, fmt.Errorf("unable to estimate the offset of track %d: %w", idx, err)
		}
		results = append(results, r)
	}
	return results, nil
}

type candidate struct {
	lag  int
	corr float64
}

// Estimate returns the offset of track b relative to track a.
//
// Silent or otherwise degenerate input is not an error: it yields the
// best correlation found, which is going to be low.
func (s *Syncer) Estimate(
	ctx context.Context,
	a, b *waveform.Data,
) (_ret syncer.AnalysisResult, _err error) {
	logger.Tracef(ctx, "Estimate")
	defer func() { logger.Tracef(ctx, "/Estimate: %v %v", _ret.OffsetSeconds, _err) }()

	if err := syncer.ValidatePair(a, b); err != nil {
		return syncer.AnalysisResult{}, err
	}
	sink := progress.OrNoop(s.Progress)
	cfg := s.Config
	rate := float64(a.SampleRate)
	hop := envelopeHop(cfg.CoarseStepSeconds, rate)
	envA, envB := envelope(a.Samples, hop), envelope(b.Samples, hop)

	// lags are in the units of the samples of the current pass
	best := candidate{lag: 0, corr: -1}
	curHop := hop
	var phases []syncer.PhaseResult
	for _, phase := range []struct {
		name      string
		a, b      []float32
		hop       int
		rangeSecs float64
		stepSecs  float64
	}{
		{PhaseCoarse, envA, envB, hop, cfg.MaxOffsetSeconds, cfg.CoarseStepSeconds},
		{PhaseRefine, envA, envB, hop, cfg.RefineRangeSeconds, cfg.RefineStepSeconds},
		{PhaseFine, a.Samples, b.Samples, 1, cfg.FineRangeSeconds, 1 / rate},
	} {
		phaseRate := rate / float64(phase.hop)
		window := int(math.Round(cfg.AnalysisLengthSeconds * phaseRate))
		if phase.hop != curHop {
			lag := best.lag * curHop / phase.hop
			best = candidate{lag: lag, corr: Correlate(phase.a, phase.b, lag, window)}
			curHop = phase.hop
		}

		var err error
		best, err = s.searchPhase(ctx, sink, phase.name, phase.a, phase.b, best, phase.rangeSecs*phaseRate, phase.stepSecs*phaseRate, window)
		if err != nil {
			return syncer.AnalysisResult{}, fmt.Errorf("%s search: %w", phase.name, err)
		}
		logger.Debugf(ctx, "%s search: best lag %d samples, correlation %f", phase.name, best.lag*phase.hop, best.corr)
		phases = append(phases, syncer.PhaseResult{
			Name:          phase.name,
			OffsetSamples: best.lag * phase.hop,
			Correlation:   best.corr,
		})
	}
	best.lag *= curHop
	sink.Progress(ctx, progress.StageDone, 100)

	return syncer.AnalysisResult{
		OffsetSeconds:   float64(best.lag) / rate,
		Confidence:      syncer.ConfidenceFromCorrelation(best.corr),
		CorrelationPeak: best.corr,
		Phases:          phases,
	}, nil
}

// searchPhase evaluates lags best.lag + round(k*stepSamples) for every k,
// such that the distance from best.lag does not exceed rangeSamples. The
// lags are walked in ascending order and only a strictly better
// correlation replaces the current best.
func (s *Syncer) searchPhase(
	ctx context.Context,
	sink progress.Sink,
	name string,
	data1, data2 []float32,
	best candidate,
	rangeSamples float64,
	stepSamples float64,
	window int,
) (candidate, error) {
	if stepSamples < 1 {
		stepSamples = 1
	}
	steps := int(math.Floor(rangeSamples/stepSamples + 1e-9))
	center := best.lag
	total := 2*steps + 1
	progressRange := phaseProgress[name]
	stage := phaseStage[name]

	prevLag := math.MinInt
	for k := -steps; k <= steps; k++ {
		done := k + steps
		if done%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return best, err
			}
			sink.Progress(ctx, stage, progressRange[0]+(progressRange[1]-progressRange[0])*float64(done)/float64(total))
		}

		lag := center + int(math.Round(float64(k)*stepSamples))
		if lag == prevLag {
			continue
		}
		prevLag = lag

		corr := Correlate(data1, data2, lag, window)
		if corr > best.corr {
			best = candidate{lag: lag, corr: corr}
		}
	}
	sink.Progress(ctx, stage, progressRange[1])
	return best, nil
}

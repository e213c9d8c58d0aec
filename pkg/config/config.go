// Package config loads the settings of the commands from a config file,
// AUDIOSYNC_* environment variables and command line flags (in the order of
// increasing precedence).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xaionaro-go/audiosync/pkg/playback"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/pearson"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

const EnvPrefix = "AUDIOSYNC"

type Algorithm string

const (
	AlgorithmPearson = Algorithm("pearson")
	AlgorithmGCCPHAT = Algorithm("gccphat")
	AlgorithmFFT     = Algorithm("fft")
)

func (a Algorithm) Validate() error {
	switch a {
	case AlgorithmPearson, AlgorithmGCCPHAT, AlgorithmFFT:
		return nil
	default:
		return fmt.Errorf("unknown algorithm '%s', must be one of: pearson, gccphat, fft", string(a))
	}
}

type Config struct {
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Playback  playback.Config `mapstructure:"playback"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ExtractorConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
}

type AnalysisConfig struct {
	Algorithm Algorithm      `mapstructure:"algorithm"`
	Pearson   pearson.Config `mapstructure:"pearson"`

	// GCC-PHAT band limits, in Hz.
	MinFreq float64 `mapstructure:"min_freq"`
	MaxFreq float64 `mapstructure:"max_freq"`

	VerifyDrift     bool    `mapstructure:"verify_drift"`
	VerifyChunkSize int     `mapstructure:"verify_chunk_size"`
	LowConfidence   float64 `mapstructure:"low_confidence"`
}

type StorageConfig struct {
	// DBPath is the SQLite database with the sync states. Empty means the
	// states are not persisted.
	DBPath string `mapstructure:"db_path"`
}

func Default() Config {
	return Config{
		Extractor: ExtractorConfig{
			SampleRate: waveform.DefaultSampleRate,
		},
		Analysis: AnalysisConfig{
			Algorithm:       AlgorithmPearson,
			Pearson:         pearson.DefaultConfig(),
			MinFreq:         100,
			MaxFreq:         12000,
			VerifyChunkSize: 4096,
			LowConfidence:   0.6,
		},
		Playback: playback.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("extractor.sample_rate", cfg.Extractor.SampleRate)

	v.SetDefault("analysis.algorithm", string(cfg.Analysis.Algorithm))
	v.SetDefault("analysis.pearson.max_offset_seconds", cfg.Analysis.Pearson.MaxOffsetSeconds)
	v.SetDefault("analysis.pearson.analysis_length_seconds", cfg.Analysis.Pearson.AnalysisLengthSeconds)
	v.SetDefault("analysis.pearson.coarse_step_seconds", cfg.Analysis.Pearson.CoarseStepSeconds)
	v.SetDefault("analysis.pearson.refine_range_seconds", cfg.Analysis.Pearson.RefineRangeSeconds)
	v.SetDefault("analysis.pearson.refine_step_seconds", cfg.Analysis.Pearson.RefineStepSeconds)
	v.SetDefault("analysis.pearson.fine_range_seconds", cfg.Analysis.Pearson.FineRangeSeconds)
	v.SetDefault("analysis.min_freq", cfg.Analysis.MinFreq)
	v.SetDefault("analysis.max_freq", cfg.Analysis.MaxFreq)
	v.SetDefault("analysis.verify_drift", cfg.Analysis.VerifyDrift)
	v.SetDefault("analysis.verify_chunk_size", cfg.Analysis.VerifyChunkSize)
	v.SetDefault("analysis.low_confidence", cfg.Analysis.LowConfidence)

	v.SetDefault("playback.preroll_epsilon", cfg.Playback.PreRollEpsilon)
	v.SetDefault("playback.frame_threshold", cfg.Playback.FrameThreshold)
	v.SetDefault("playback.poll_threshold", cfg.Playback.PollThreshold)
	v.SetDefault("playback.post_seek_threshold", cfg.Playback.PostSeekThreshold)
	v.SetDefault("playback.quiet_window", cfg.Playback.QuietWindow)
	v.SetDefault("playback.frame_interval", cfg.Playback.FrameInterval)
	v.SetDefault("playback.poll_interval", cfg.Playback.PollInterval)
	v.SetDefault("playback.seek_debounce", cfg.Playback.SeekDebounce)
	v.SetDefault("playback.tick_buffer", cfg.Playback.TickBuffer)

	v.SetDefault("storage.db_path", cfg.Storage.DBPath)
}

// Load reads the configuration. 'path' may be empty, then only the
// defaults, the environment and the flags are used. 'flags' maps config
// keys (like "analysis.algorithm") to command line flags.
func Load(path string, flags map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("unable to bind flag '%s' to '%s': %w", flag.Name, key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("unable to read the config file '%s': %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.Extractor.SampleRate <= 0 {
		return fmt.Errorf("extractor.sample_rate must be positive, got %d", cfg.Extractor.SampleRate)
	}
	if err := cfg.Analysis.Algorithm.Validate(); err != nil {
		return err
	}
	if err := cfg.Analysis.Pearson.Validate(); err != nil {
		return fmt.Errorf("analysis.pearson: %w", err)
	}
	if cfg.Analysis.MinFreq < 0 || cfg.Analysis.MaxFreq <= cfg.Analysis.MinFreq {
		return fmt.Errorf("invalid GCC-PHAT band: %v..%v Hz", cfg.Analysis.MinFreq, cfg.Analysis.MaxFreq)
	}
	if err := cfg.Playback.Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

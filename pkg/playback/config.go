package playback

import (
	"fmt"
	"time"
)

type Config struct {
	// PreRollEpsilon is how early (in seconds) a blocked secondary stream
	// is released before the global time reaches its start.
	PreRollEpsilon float64 `mapstructure:"preroll_epsilon"`

	// Drift (in seconds) that triggers a corrective seek.
	FrameThreshold    float64 `mapstructure:"frame_threshold"`
	PollThreshold     float64 `mapstructure:"poll_threshold"`
	PostSeekThreshold float64 `mapstructure:"post_seek_threshold"`

	// QuietWindow is for how long drift corrections are suppressed after a
	// seek (both corrective and requested).
	QuietWindow time.Duration `mapstructure:"quiet_window"`

	FrameInterval time.Duration `mapstructure:"frame_interval"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SeekDebounce  time.Duration `mapstructure:"seek_debounce"`

	// TickBuffer is the capacity of the channel of ticks of a Session.
	TickBuffer int `mapstructure:"tick_buffer"`
}

func DefaultConfig() Config {
	return Config{
		PreRollEpsilon:    0.05,
		FrameThreshold:    0.01,
		PollThreshold:     0.1,
		PostSeekThreshold: 0.05,
		QuietWindow:       500 * time.Millisecond,
		FrameInterval:     16 * time.Millisecond,
		PollInterval:      200 * time.Millisecond,
		SeekDebounce:      50 * time.Millisecond,
		TickBuffer:        256,
	}
}

func (cfg Config) Validate() error {
	if cfg.PreRollEpsilon < 0 {
		return fmt.Errorf("pre-roll epsilon cannot be negative: %v", cfg.PreRollEpsilon)
	}
	if cfg.FrameThreshold <= 0 || cfg.PollThreshold <= 0 || cfg.PostSeekThreshold <= 0 {
		return fmt.Errorf("drift thresholds must be positive: %v/%v/%v", cfg.FrameThreshold, cfg.PollThreshold, cfg.PostSeekThreshold)
	}
	if cfg.FrameInterval <= 0 || cfg.PollInterval <= 0 {
		return fmt.Errorf("tick intervals must be positive: %v/%v", cfg.FrameInterval, cfg.PollInterval)
	}
	if cfg.QuietWindow < 0 || cfg.SeekDebounce < 0 {
		return fmt.Errorf("quiet window and seek debounce cannot be negative: %v/%v", cfg.QuietWindow, cfg.SeekDebounce)
	}
	return nil
}

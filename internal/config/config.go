package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/occlude/internal/capture"
	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/occlusion"
)

// AggregatorConfig tunes window resolution and rect aggregation.
type AggregatorConfig struct {
	SlackOffsetMS     int64 `yaml:"slack_offset_ms" toml:"slack_offset_ms"`
	Padding           int   `yaml:"padding" toml:"padding"`
	DebounceThreshold int   `yaml:"debounce_threshold" toml:"debounce_threshold"`
	EvictionMarginMS  int64 `yaml:"eviction_margin_ms" toml:"eviction_margin_ms"` // retained history behind each window
}

type QueueConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"` // pending ingest batches before drop-oldest
}

type FrameStoreConfig struct {
	MaxFrames int `yaml:"max_frames" toml:"max_frames"` // 0 = unlimited
}

type VisibilityConfig struct {
	PruneAfterCycles int `yaml:"prune_after_cycles" toml:"prune_after_cycles"` // 0 = never prune
}

// InsetsSource selects where the horizontal offset comes from.
type InsetsSource string

const (
	InsetsStatic InsetsSource = "static"
	InsetsX11    InsetsSource = "x11"
)

type InsetsConfig struct {
	Source      InsetsSource `yaml:"source" toml:"source"`
	Left        int          `yaml:"left" toml:"left"`
	Orientation string       `yaml:"orientation,omitempty" toml:"orientation,omitempty"`
	Display     string       `yaml:"display,omitempty" toml:"display,omitempty"` // X display for the x11 source
}

// HotkeysConfig binds global X11 key sequences, e.g. "Mod4-Shift-p", to
// privacy actions. Empty disables a binding.
type HotkeysConfig struct {
	MaskScreen   string `yaml:"mask_screen,omitempty" toml:"mask_screen,omitempty"`
	ResetSession string `yaml:"reset_session,omitempty" toml:"reset_session,omitempty"`
}

// Enabled reports whether any hotkey is bound.
func (h HotkeysConfig) Enabled() bool {
	return h.MaskScreen != "" || h.ResetSession != ""
}

// CapturerKind selects what receives resolved rects inside the daemon.
type CapturerKind string

const (
	CapturerLog  CapturerKind = "log"
	CapturerNone CapturerKind = "none"
)

// Config is the daemon configuration.
type Config struct {
	LogLevel          string           `yaml:"log_level" toml:"log_level"`
	Aggregator        AggregatorConfig `yaml:"aggregator" toml:"aggregator"`
	ResolveDeadlineMS int              `yaml:"resolve_deadline_ms" toml:"resolve_deadline_ms"`
	Queue             QueueConfig      `yaml:"queue" toml:"queue"`
	FrameStore        FrameStoreConfig `yaml:"frame_store" toml:"frame_store"`
	Visibility        VisibilityConfig `yaml:"visibility" toml:"visibility"`
	Insets            InsetsConfig     `yaml:"insets" toml:"insets"`
	Capturer          CapturerKind     `yaml:"capturer" toml:"capturer"`
	Hotkeys           HotkeysConfig    `yaml:"hotkeys" toml:"hotkeys"`
	StatusIntervalSec int              `yaml:"status_interval_sec" toml:"status_interval_sec"` // 0 disables periodic status logs
}

// ValidationError points at the offending config key.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Aggregator: AggregatorConfig{
			SlackOffsetMS:     occlusion.DefaultSlackOffset,
			Padding:           occlusion.DefaultPadding,
			DebounceThreshold: occlusion.DefaultDebounceThreshold,
		},
		ResolveDeadlineMS: int(capture.DefaultResolveDeadline / time.Millisecond),
		Queue:             QueueConfig{Capacity: capture.DefaultQueueCapacity},
		FrameStore:        FrameStoreConfig{MaxFrames: occlusion.DefaultMaxFrames},
		Insets:            InsetsConfig{Source: InsetsStatic},
		Capturer:          CapturerLog,
		StatusIntervalSec: 60,
	}
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if c.Aggregator.SlackOffsetMS < 0 {
		return &ValidationError{Path: "aggregator.slack_offset_ms", Err: fmt.Errorf("slack_offset_ms must be >= 0")}
	}
	if c.Aggregator.Padding < 0 {
		return &ValidationError{Path: "aggregator.padding", Err: fmt.Errorf("padding must be >= 0")}
	}
	if c.Aggregator.DebounceThreshold < 1 {
		return &ValidationError{Path: "aggregator.debounce_threshold", Err: fmt.Errorf("debounce_threshold must be >= 1")}
	}
	if c.Aggregator.EvictionMarginMS < 0 {
		return &ValidationError{Path: "aggregator.eviction_margin_ms", Err: fmt.Errorf("eviction_margin_ms must be >= 0")}
	}
	if c.ResolveDeadlineMS < 0 {
		return &ValidationError{Path: "resolve_deadline_ms", Err: fmt.Errorf("resolve_deadline_ms must be >= 0")}
	}
	if c.Queue.Capacity < 1 {
		return &ValidationError{Path: "queue.capacity", Err: fmt.Errorf("capacity must be >= 1")}
	}
	if c.FrameStore.MaxFrames < 0 {
		return &ValidationError{Path: "frame_store.max_frames", Err: fmt.Errorf("max_frames must be >= 0")}
	}
	if c.Visibility.PruneAfterCycles < 0 {
		return &ValidationError{Path: "visibility.prune_after_cycles", Err: fmt.Errorf("prune_after_cycles must be >= 0")}
	}
	if c.Visibility.PruneAfterCycles > 0 && c.Visibility.PruneAfterCycles < c.Aggregator.DebounceThreshold {
		// Pruning earlier would forget keys that are still emitted.
		return &ValidationError{Path: "visibility.prune_after_cycles", Err: fmt.Errorf("prune_after_cycles must be 0 or >= debounce_threshold")}
	}
	switch c.Insets.Source {
	case InsetsStatic, InsetsX11:
	default:
		return &ValidationError{Path: "insets.source", Err: fmt.Errorf("source must be one of: static, x11")}
	}
	if c.Insets.Left < 0 {
		return &ValidationError{Path: "insets.left", Err: fmt.Errorf("left must be >= 0")}
	}
	if _, err := insets.ParseOrientation(c.Insets.Orientation); err != nil {
		return &ValidationError{Path: "insets.orientation", Err: err}
	}
	switch c.Capturer {
	case CapturerLog, CapturerNone:
	default:
		return &ValidationError{Path: "capturer", Err: fmt.Errorf("capturer must be one of: log, none")}
	}
	if h := c.Hotkeys; h.MaskScreen != "" && strings.EqualFold(h.MaskScreen, h.ResetSession) {
		return &ValidationError{Path: "hotkeys.reset_session", Err: fmt.Errorf("%q is already bound to mask_screen", h.ResetSession)}
	}
	if c.StatusIntervalSec < 0 {
		return &ValidationError{Path: "status_interval_sec", Err: fmt.Errorf("status_interval_sec must be >= 0")}
	}
	return nil
}

// SlogLevel maps log_level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineConfig converts the aggregator settings.
func (c *Config) EngineConfig(logger *slog.Logger) occlusion.Config {
	return occlusion.Config{
		SlackOffset:       c.Aggregator.SlackOffsetMS,
		Padding:           c.Aggregator.Padding,
		DebounceThreshold: c.Aggregator.DebounceThreshold,
		EvictionMargin:    c.Aggregator.EvictionMarginMS,
		MaxFrames:         c.FrameStore.MaxFrames,
		PruneAfterCycles:  c.Visibility.PruneAfterCycles,
		Logger:            logger,
	}
}

func (c *Config) ResolveDeadline() time.Duration {
	return time.Duration(c.ResolveDeadlineMS) * time.Millisecond
}

// CaptureConfig builds the synchronizer settings.
func (c *Config) CaptureConfig(logger *slog.Logger) capture.Config {
	return capture.Config{
		Engine:          c.EngineConfig(logger),
		QueueCapacity:   c.Queue.Capacity,
		ResolveDeadline: c.ResolveDeadline(),
		Logger:          logger,
	}
}

// StaticMetrics is the device metrics implied by the static insets settings.
func (c *Config) StaticMetrics() insets.Metrics {
	orientation, _ := insets.ParseOrientation(c.Insets.Orientation)
	return insets.Metrics{
		Insets:      insets.Insets{Left: c.Insets.Left},
		Orientation: orientation,
	}
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to path, creating its directory. The format
// follows the file extension.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := encodeFor(path, c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

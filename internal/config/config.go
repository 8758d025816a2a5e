// Package config holds the daemon settings, their defaults, and the
// viper-backed loader that keeps them current while the daemon runs.
package config

import (
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
)

// Config is the complete, typed configuration. Every field has a default.
type Config struct {
	Retention RetentionConfig `json:"retention"`
	UI        UIConfig        `json:"ui"`
	Grid      GridConfig      `json:"grid"`
	Behavior  BehaviorConfig  `json:"behavior"`
	Daemon    DaemonConfig    `json:"daemon"`
	Logging   LoggingConfig   `json:"logging"`
}

type RetentionConfig struct {
	// Days is the maximum idle age of an entry. Zero disables retention.
	Days            int  `json:"days"`
	ProtectStarred  bool `json:"protect_starred"`
	IntervalMinutes int  `json:"interval_minutes"`
}

func (r RetentionConfig) MaxAge() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

func (r RetentionConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// UIConfig and GridConfig are consumed by the picker client only.
type UIConfig struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Anchor  string  `json:"anchor"`
	Opacity float64 `json:"opacity"`
	Blur    float64 `json:"blur"`
}

type GridConfig struct {
	ThumbSize int `json:"thumb_size"`
	Columns   int `json:"columns"`
}

type BehaviorConfig struct {
	PollIntervalMS int      `json:"poll_interval_ms"`
	CaptureImages  bool     `json:"capture_images"`
	ImageMIMEs     []string `json:"image_mimes"`
	MaxItemBytes   int64    `json:"max_item_bytes"`
	IgnorePatterns []string `json:"ignore_patterns"`
	IgnoreRegex    bool     `json:"ignore_regex"`
	CloseOnCopy    bool     `json:"close_on_copy"`
}

func (b BehaviorConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMS) * time.Millisecond
}

// PrivacyFilter compiles the ignore patterns.
func (b BehaviorConfig) PrivacyFilter() (*core.PrivacyFilter, error) {
	return core.NewPrivacyFilter(b.IgnorePatterns, b.IgnoreRegex)
}

type DaemonConfig struct {
	Socket    string `json:"socket"`
	Database  string `json:"database"`
	Clipboard string `json:"clipboard"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	AnchorTopLeft     = "top-left"
	AnchorTopRight    = "top-right"
	AnchorBottomLeft  = "bottom-left"
	AnchorBottomRight = "bottom-right"
	AnchorCenter      = "center"
)

// Default returns the built-in configuration. Socket and Database stay empty
// and are resolved from the XDG directories at load time.
func Default() Config {
	return Config{
		Retention: RetentionConfig{
			Days:            30,
			ProtectStarred:  true,
			IntervalMinutes: 60,
		},
		UI: UIConfig{
			Width:   480,
			Height:  640,
			Anchor:  AnchorTopRight,
			Opacity: 0.92,
			Blur:    12,
		},
		Grid: GridConfig{
			ThumbSize: 104,
			Columns:   3,
		},
		Behavior: BehaviorConfig{
			PollIntervalMS: 300,
			CaptureImages:  true,
			ImageMIMEs:     []string{"image/png", "image/jpeg", "image/webp", "image/bmp"},
			MaxItemBytes:   10 << 20,
			IgnorePatterns: []string{"password=", "token=", "apikey=", "secret=", "authorization: bearer"},
			CloseOnCopy:    true,
		},
		Daemon: DaemonConfig{
			Clipboard: "auto",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Clone returns a copy that shares no slices with c.
func (c Config) Clone() Config {
	out := c
	out.Behavior.ImageMIMEs = append([]string(nil), c.Behavior.ImageMIMEs...)
	out.Behavior.IgnorePatterns = append([]string(nil), c.Behavior.IgnorePatterns...)
	return out
}

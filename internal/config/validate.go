package config

import (
	"fmt"
	"strings"

	"github.com/its-jojoo/otterclipd/internal/adapter/clipboard"
)

func normalize(c *Config) {
	c.UI.Anchor = strings.ToLower(strings.TrimSpace(c.UI.Anchor))
	if c.UI.Anchor == "" {
		c.UI.Anchor = AnchorTopRight
	}

	c.Daemon.Clipboard = strings.ToLower(strings.TrimSpace(c.Daemon.Clipboard))
	if c.Daemon.Clipboard == "" {
		c.Daemon.Clipboard = "auto"
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	var mimes []string
	for _, m := range c.Behavior.ImageMIMEs {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			mimes = append(mimes, m)
		}
	}
	c.Behavior.ImageMIMEs = mimes
}

// validate collects every invalid value into one error.
func validate(c Config) error {
	var problems []string

	if c.Retention.Days < 0 {
		problems = append(problems, "retention.days must be non-negative")
	}
	if c.Retention.IntervalMinutes < 1 {
		problems = append(problems, "retention.interval_minutes must be at least 1")
	}

	if c.UI.Width < 1 || c.UI.Height < 1 {
		problems = append(problems, "ui.width and ui.height must be positive")
	}
	switch c.UI.Anchor {
	case AnchorTopLeft, AnchorTopRight, AnchorBottomLeft, AnchorBottomRight, AnchorCenter:
	default:
		problems = append(problems, fmt.Sprintf("ui.anchor %q is not one of top-left, top-right, bottom-left, bottom-right, center", c.UI.Anchor))
	}
	if c.UI.Opacity < 0 || c.UI.Opacity > 1 {
		problems = append(problems, "ui.opacity must be between 0 and 1")
	}
	if c.UI.Blur < 0 {
		problems = append(problems, "ui.blur must be non-negative")
	}

	if c.Grid.ThumbSize < 1 {
		problems = append(problems, "grid.thumb_size must be positive")
	}
	if c.Grid.Columns < 1 {
		problems = append(problems, "grid.columns must be positive")
	}

	if c.Behavior.PollIntervalMS < 50 {
		problems = append(problems, "behavior.poll_interval_ms must be at least 50")
	}
	if c.Behavior.MaxItemBytes < 1 {
		problems = append(problems, "behavior.max_item_bytes must be positive")
	}
	for _, m := range c.Behavior.ImageMIMEs {
		if !strings.HasPrefix(m, "image/") {
			problems = append(problems, fmt.Sprintf("behavior.image_mimes entry %q is not an image type", m))
		}
	}
	if _, err := c.Behavior.PrivacyFilter(); err != nil {
		problems = append(problems, "behavior.ignore_patterns: "+err.Error())
	}

	if !clipboard.ValidMode(c.Daemon.Clipboard) {
		problems = append(problems, fmt.Sprintf("daemon.clipboard %q is not one of %s", c.Daemon.Clipboard, strings.Join(clipboard.Modes, ", ")))
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is invalid", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid values:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

package config

import "github.com/spf13/viper"

// Keys as they appear in config.toml.
const (
	KeyRetentionDays           = "retention.days"
	KeyRetentionProtectStarred = "retention.protect_starred"
	KeyRetentionInterval       = "retention.interval_minutes"

	KeyUIWidth   = "ui.width"
	KeyUIHeight  = "ui.height"
	KeyUIAnchor  = "ui.anchor"
	KeyUIOpacity = "ui.opacity"
	KeyUIBlur    = "ui.blur"

	KeyGridThumbSize = "grid.thumb_size"
	KeyGridColumns   = "grid.columns"

	KeyPollInterval   = "behavior.poll_interval_ms"
	KeyCaptureImages  = "behavior.capture_images"
	KeyImageMIMEs     = "behavior.image_mimes"
	KeyMaxItemBytes   = "behavior.max_item_bytes"
	KeyIgnorePatterns = "behavior.ignore_patterns"
	KeyIgnoreRegex    = "behavior.ignore_regex"
	KeyCloseOnCopy    = "behavior.close_on_copy"

	KeyDaemonSocket    = "daemon.socket"
	KeyDaemonDatabase  = "daemon.database"
	KeyDaemonClipboard = "daemon.clipboard"

	KeyLogLevel  = "logging.level"
	KeyLogFormat = "logging.format"
)

// merge overlays every key present in v onto base. Keys absent from the
// file and environment keep their defaults.
func merge(v *viper.Viper, base Config) Config {
	c := base

	setInt(v, KeyRetentionDays, &c.Retention.Days)
	setBool(v, KeyRetentionProtectStarred, &c.Retention.ProtectStarred)
	setInt(v, KeyRetentionInterval, &c.Retention.IntervalMinutes)

	setInt(v, KeyUIWidth, &c.UI.Width)
	setInt(v, KeyUIHeight, &c.UI.Height)
	setString(v, KeyUIAnchor, &c.UI.Anchor)
	setFloat(v, KeyUIOpacity, &c.UI.Opacity)
	setFloat(v, KeyUIBlur, &c.UI.Blur)

	setInt(v, KeyGridThumbSize, &c.Grid.ThumbSize)
	setInt(v, KeyGridColumns, &c.Grid.Columns)

	setInt(v, KeyPollInterval, &c.Behavior.PollIntervalMS)
	setBool(v, KeyCaptureImages, &c.Behavior.CaptureImages)
	setStrings(v, KeyImageMIMEs, &c.Behavior.ImageMIMEs)
	if v.IsSet(KeyMaxItemBytes) {
		c.Behavior.MaxItemBytes = v.GetInt64(KeyMaxItemBytes)
	}
	setStrings(v, KeyIgnorePatterns, &c.Behavior.IgnorePatterns)
	setBool(v, KeyIgnoreRegex, &c.Behavior.IgnoreRegex)
	setBool(v, KeyCloseOnCopy, &c.Behavior.CloseOnCopy)

	setString(v, KeyDaemonSocket, &c.Daemon.Socket)
	setString(v, KeyDaemonDatabase, &c.Daemon.Database)
	setString(v, KeyDaemonClipboard, &c.Daemon.Clipboard)

	setString(v, KeyLogLevel, &c.Logging.Level)
	setString(v, KeyLogFormat, &c.Logging.Format)

	return c
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setStrings(v *viper.Viper, key string, dst *[]string) {
	if v.IsSet(key) {
		*dst = v.GetStringSlice(key)
	}
}

// setAll writes every field of c into v, used to produce the default file.
func setAll(v *viper.Viper, c Config) {
	v.Set(KeyRetentionDays, c.Retention.Days)
	v.Set(KeyRetentionProtectStarred, c.Retention.ProtectStarred)
	v.Set(KeyRetentionInterval, c.Retention.IntervalMinutes)

	v.Set(KeyUIWidth, c.UI.Width)
	v.Set(KeyUIHeight, c.UI.Height)
	v.Set(KeyUIAnchor, c.UI.Anchor)
	v.Set(KeyUIOpacity, c.UI.Opacity)
	v.Set(KeyUIBlur, c.UI.Blur)

	v.Set(KeyGridThumbSize, c.Grid.ThumbSize)
	v.Set(KeyGridColumns, c.Grid.Columns)

	v.Set(KeyPollInterval, c.Behavior.PollIntervalMS)
	v.Set(KeyCaptureImages, c.Behavior.CaptureImages)
	v.Set(KeyImageMIMEs, c.Behavior.ImageMIMEs)
	v.Set(KeyMaxItemBytes, c.Behavior.MaxItemBytes)
	v.Set(KeyIgnorePatterns, c.Behavior.IgnorePatterns)
	v.Set(KeyIgnoreRegex, c.Behavior.IgnoreRegex)
	v.Set(KeyCloseOnCopy, c.Behavior.CloseOnCopy)

	v.Set(KeyDaemonSocket, c.Daemon.Socket)
	v.Set(KeyDaemonDatabase, c.Daemon.Database)
	v.Set(KeyDaemonClipboard, c.Daemon.Clipboard)

	v.Set(KeyLogLevel, c.Logging.Level)
	v.Set(KeyLogFormat, c.Logging.Format)
}

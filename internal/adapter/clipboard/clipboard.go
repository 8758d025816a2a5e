// Package clipboard reads and writes the desktop clipboard through the
// wl-clipboard (Wayland), xclip (X11) or pbpaste/pbcopy (macOS) command
// line tools.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
)

// Reader returns the current clipboard content for one MIME type.
// It returns core.ErrEmpty when nothing of that type is offered.
type Reader interface {
	Read(ctx context.Context, mime string) ([]byte, error)
}

// Writer places content on the clipboard.
type Writer interface {
	Write(ctx context.Context, mime string, data []byte) error
}

// Checker confirms that the backend can be used in this session.
type Checker interface {
	Check(ctx context.Context) error
}

// DefaultReadTimeout bounds a single paste invocation.
const DefaultReadTimeout = 2 * time.Second

// missingError carries a remediation message and matches a core sentinel.
type missingError struct {
	msg  string
	kind error
}

func (e *missingError) Error() string { return e.msg }
func (e *missingError) Unwrap() error { return e.kind }

// Tool drives one clipboard backend. It implements Reader, Writer and
// Checker.
type Tool struct {
	Name    string
	Display string // environment variable naming the session, if any
	Paste   string
	Copy    string
	Package string

	// TextOnly backends report core.ErrEmpty for every other MIME type.
	TextOnly bool

	pasteArgs func(mime string) []string
	copyArgs  func(mime string) []string

	ReadTimeout time.Duration

	lookPath func(string) (string, error)
	getenv   func(string) string
	output   func(ctx context.Context, name string, args ...string) ([]byte, error)
	input    func(ctx context.Context, data []byte, name string, args ...string) error
}

var (
	_ Reader  = (*Tool)(nil)
	_ Writer  = (*Tool)(nil)
	_ Checker = (*Tool)(nil)
)

func Wayland() *Tool {
	return newTool(&Tool{
		Name:    "wayland",
		Display: "WAYLAND_DISPLAY",
		Paste:   "wl-paste",
		Copy:    "wl-copy",
		Package: "wl-clipboard",
		pasteArgs: func(mime string) []string {
			return []string{"--no-newline", "--type", mime}
		},
		copyArgs: func(mime string) []string {
			return []string{"--type", mime}
		},
	})
}

func X11() *Tool {
	return newTool(&Tool{
		Name:    "x11",
		Display: "DISPLAY",
		Paste:   "xclip",
		Copy:    "xclip",
		Package: "xclip",
		pasteArgs: func(mime string) []string {
			// Most X11 clients offer text as UTF8_STRING only.
			if mime == core.MIMEText {
				mime = "UTF8_STRING"
			}
			return []string{"-selection", "clipboard", "-o", "-t", mime}
		},
		copyArgs: func(mime string) []string {
			return []string{"-selection", "clipboard", "-i", "-t", mime}
		},
	})
}

// Darwin uses the pbpaste and pbcopy tools that ship with macOS. They only
// exchange plain text.
func Darwin() *Tool {
	return newTool(&Tool{
		Name:     "darwin",
		Paste:    "pbpaste",
		Copy:     "pbcopy",
		TextOnly: true,
		pasteArgs: func(string) []string {
			return []string{"-Prefer", "txt"}
		},
		copyArgs: func(string) []string { return nil },
	})
}

func newTool(t *Tool) *Tool {
	t.ReadTimeout = DefaultReadTimeout
	t.lookPath = exec.LookPath
	t.getenv = os.Getenv
	t.output = runOutput
	t.input = runInput
	return t
}

// Modes lists the accepted backend names, in addition to "".
var Modes = []string{"auto", "wayland", "x11", "xclip", "darwin", "macos"}

// ValidMode reports whether Detect accepts mode.
func ValidMode(mode string) bool {
	mode = strings.ToLower(strings.TrimSpace(mode))
	return mode == "" || slices.Contains(Modes, mode)
}

// Detect picks a backend. mode is "wayland", "x11", "darwin" or
// "auto"/"". Auto picks pbpaste on macOS, otherwise Wayland when
// WAYLAND_DISPLAY is set and X11 when DISPLAY is set.
func Detect(mode string) (*Tool, error) {
	return detect(mode, runtime.GOOS, os.Getenv)
}

func detect(mode, goos string, getenv func(string) string) (*Tool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "wayland":
		return Wayland(), nil
	case "x11", "xclip":
		return X11(), nil
	case "darwin", "macos":
		return Darwin(), nil
	case "", "auto":
		if goos == "darwin" {
			return Darwin(), nil
		}
		if getenv("WAYLAND_DISPLAY") != "" {
			return Wayland(), nil
		}
		if getenv("DISPLAY") != "" {
			return X11(), nil
		}
		// Report the Wayland requirements from Check.
		return Wayland(), nil
	}
	return nil, fmt.Errorf("unknown clipboard backend %q (want one of %s)", mode, strings.Join(Modes, ", "))
}

// Check verifies the paste tool is on PATH and the display session exists.
func (t *Tool) Check(ctx context.Context) error {
	_ = ctx
	if _, err := t.lookPath(t.Paste); err != nil {
		return &missingError{
			msg:  t.notFound(t.Paste),
			kind: core.ErrPrerequisiteMissing,
		}
	}
	if t.Display != "" && t.getenv(t.Display) == "" {
		return &missingError{
			msg:  fmt.Sprintf("%s not set: not running under %s", t.Display, t.Name),
			kind: core.ErrPrerequisiteMissing,
		}
	}
	return nil
}

// Read runs the paste tool. A non-zero exit or empty output means the
// clipboard offers nothing of that type.
func (t *Tool) Read(ctx context.Context, mime string) ([]byte, error) {
	if t.TextOnly && mime != core.MIMEText {
		return nil, core.ErrEmpty
	}
	if t.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.ReadTimeout)
		defer cancel()
	}

	out, err := t.output(ctx, t.Paste, t.pasteArgs(mime)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil, core.ErrEmpty
		}
		return nil, fmt.Errorf("%s --type %s: %w", t.Paste, mime, err)
	}
	if len(out) == 0 {
		return nil, core.ErrEmpty
	}
	return out, nil
}

// Write pipes data into the copy tool.
func (t *Tool) Write(ctx context.Context, mime string, data []byte) error {
	if len(data) == 0 {
		return errors.New("cannot copy empty content to clipboard")
	}
	if _, err := t.lookPath(t.Copy); err != nil {
		return &missingError{
			msg:  t.notFound(t.Copy),
			kind: core.ErrToolMissing,
		}
	}
	if mime == "" {
		mime = core.MIMEText
	}
	if t.TextOnly && mime != core.MIMEText {
		return fmt.Errorf("%s cannot copy %s content", t.Copy, mime)
	}
	if err := t.input(ctx, data, t.Copy, t.copyArgs(mime)...); err != nil {
		return fmt.Errorf("%s command failed: %w", t.Copy, err)
	}
	return nil
}

func (t *Tool) notFound(bin string) string {
	if t.Package == "" {
		return fmt.Sprintf("%s not found in PATH", bin)
	}
	return fmt.Sprintf("%s not found in PATH: install %s", bin, t.Package)
}

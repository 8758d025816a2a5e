package capture

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/clipboard"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

const DefaultInterval = 300 * time.Millisecond

// Options are re-read on every iteration so config reloads apply without a
// restart.
type Options struct {
	Interval      time.Duration
	CaptureImages bool
	ImageMIMEs    []string
	MaxBytes      int64
	Privacy       *core.PrivacyFilter
}

// LiveOptions is a swappable Options value.
type LiveOptions struct {
	v atomic.Pointer[Options]
}

func NewLiveOptions(o Options) *LiveOptions {
	l := &LiveOptions{}
	l.Store(o)
	return l
}

func (l *LiveOptions) Load() Options   { return *l.v.Load() }
func (l *LiveOptions) Store(o Options) { l.v.Store(&o) }

// Poller samples the clipboard on a fixed interval and records content
// whose hash differs from the last one seen for that kind.
type Poller struct {
	store   storage.Store
	reader  clipboard.Reader
	checker clipboard.Checker
	options func() Options

	// Owned by the polling goroutine.
	lastText  string
	lastImage string
}

// New builds a Poller. checker may be nil.
func New(store storage.Store, reader clipboard.Reader, checker clipboard.Checker, options func() Options) *Poller {
	return &Poller{
		store:   store,
		reader:  reader,
		checker: checker,
		options: options,
	}
}

// Run checks the clipboard prerequisites and then polls until ctx is done.
// A failed check disables the poller only; Run logs it and returns nil.
func (p *Poller) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	if p.checker != nil {
		if err := p.checker.Check(ctx); err != nil {
			log.Error().Err(err).Msg("clipboard monitoring disabled")
			return nil
		}
	}

	interval := p.interval()
	log.Info().Dur("interval", interval).Msg("clipboard poller started")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("clipboard poller stopped")
			return nil
		case <-timer.C:
		}

		p.Poll(ctx)
		timer.Reset(p.interval())
	}
}

func (p *Poller) interval() time.Duration {
	if d := p.options().Interval; d > 0 {
		return d
	}
	return DefaultInterval
}

// Poll runs one iteration over every watched kind and returns how many
// clips were handed to the store.
func (p *Poller) Poll(ctx context.Context) int {
	opts := p.options()
	n := 0

	if ctx.Err() == nil {
		if p.pollText(ctx, opts) {
			n++
		}
	}
	if opts.CaptureImages && ctx.Err() == nil {
		if p.pollImage(ctx, opts) {
			n++
		}
	}
	return n
}

func (p *Poller) pollText(ctx context.Context, opts Options) bool {
	log := logging.FromContext(ctx)

	data, err := p.reader.Read(ctx, core.MIMEText)
	switch {
	case errors.Is(err, core.ErrEmpty):
		p.lastText = ""
		return false
	case err != nil:
		log.Debug().Err(err).Msg("failed to poll text clipboard")
		return false
	}

	_, recorded, err := p.ProcessText(ctx, data, opts)
	if err != nil {
		log.Warn().Err(err).Msg("failed to process text clipboard entry")
	}
	return recorded
}

func (p *Poller) pollImage(ctx context.Context, opts Options) bool {
	log := logging.FromContext(ctx)

	for _, mime := range opts.ImageMIMEs {
		data, err := p.reader.Read(ctx, mime)
		if errors.Is(err, core.ErrEmpty) {
			continue
		}
		if err != nil {
			log.Debug().Err(err).Str("mime", mime).Msg("failed to poll image clipboard")
			return false
		}

		_, recorded, err := p.ProcessImage(ctx, mime, data, opts)
		if err != nil {
			log.Warn().Err(err).Str("mime", mime).Msg("failed to process image clipboard entry")
		}
		return recorded
	}

	p.lastImage = ""
	return false
}

// ProcessText records text unless it matches the last text seen, is blank,
// is too large, or is caught by the privacy filter. The last-seen hash only
// advances once the content is settled (stored or deliberately ignored).
func (p *Poller) ProcessText(ctx context.Context, data []byte, opts Options) (int64, bool, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(string(data)) == "" {
		p.lastText = ""
		return 0, false, nil
	}

	hash := core.Fingerprint(data)
	if hash == p.lastText {
		return 0, false, nil
	}

	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		log.Info().Int("bytes", len(data)).Int64("max_bytes", opts.MaxBytes).Msg("text clip too large, skipping")
		p.lastText = hash
		return 0, false, nil
	}
	if opts.Privacy.ShouldIgnore(string(data)) {
		log.Debug().Msg("text clip matched an ignore pattern, skipping")
		p.lastText = hash
		return 0, false, nil
	}

	log.Debug().Str("hash", hash).Msg("text clipboard changed")
	id, err := p.store.Record(context.WithoutCancel(ctx), data, core.KindText, core.MIMEText, hash)
	if err != nil {
		return 0, false, err
	}
	p.lastText = hash
	return id, true, nil
}

// ProcessImage is ProcessText for images: no blank or privacy checks.
func (p *Poller) ProcessImage(ctx context.Context, mime string, data []byte, opts Options) (int64, bool, error) {
	log := logging.FromContext(ctx)

	if len(data) == 0 {
		p.lastImage = ""
		return 0, false, nil
	}

	hash := core.Fingerprint(data)
	if hash == p.lastImage {
		return 0, false, nil
	}

	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		log.Info().Int("bytes", len(data)).Int64("max_bytes", opts.MaxBytes).Str("mime", mime).Msg("image clip too large, skipping")
		p.lastImage = hash
		return 0, false, nil
	}

	log.Debug().Str("hash", hash).Str("mime", mime).Msg("image clipboard changed")
	id, err := p.store.Record(context.WithoutCancel(ctx), data, core.KindImage, mime, hash)
	if err != nil {
		return 0, false, err
	}
	p.lastImage = hash
	return id, true, nil
}

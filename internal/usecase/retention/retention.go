// Package retention prunes clips that have not been used for longer than the
// configured age.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

const DefaultInterval = time.Hour

// Policy is read at the start of every cycle. A zero MaxAge disables
// deletion.
type Policy struct {
	MaxAge         time.Duration
	ProtectStarred bool
	Interval       time.Duration
}

// Result describes the most recent cycle.
type Result struct {
	At      time.Time
	Deleted int
	Err     error
}

type Service struct {
	store  storage.Store
	policy func() Policy

	mu    sync.Mutex
	last  Result
	total int
}

func New(store storage.Store, policy func() Policy) *Service {
	return &Service{store: store, policy: policy}
}

// RunOnce performs one retention cycle.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)
	p := s.policy()

	if p.MaxAge <= 0 {
		log.Debug().Msg("retention disabled, skipping cycle")
		return 0, nil
	}

	n, err := s.store.DeleteOlderThan(context.WithoutCancel(ctx), p.MaxAge, p.ProtectStarred)

	s.mu.Lock()
	s.last = Result{At: s.store.Now(), Deleted: n, Err: err}
	if err == nil {
		s.total += n
	}
	s.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("retention cycle failed")
		return 0, err
	}
	log.Info().
		Int("deleted", n).
		Dur("max_age", p.MaxAge).
		Bool("protect_starred", p.ProtectStarred).
		Msg("retention cycle complete")
	return n, nil
}

// Run performs a cycle immediately and then once per policy interval until
// ctx is done. Failed cycles are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	_, _ = s.RunOnce(ctx)

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention stopped")
			return nil
		case <-timer.C:
		}

		_, _ = s.RunOnce(ctx)
		timer.Reset(s.interval())
	}
}

func (s *Service) interval() time.Duration {
	if d := s.policy().Interval; d > 0 {
		return d
	}
	return DefaultInterval
}

// Last returns the outcome of the latest cycle.
func (s *Service) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Total returns the number of clips deleted since start.
func (s *Service) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

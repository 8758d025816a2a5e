package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/imaging"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

type entry struct {
	item    core.Item
	payload []byte
	folded  string
}

// Store keeps the history in process memory. It backs ephemeral daemons and
// tests and behaves like the sqlite store.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	thumbnail storage.Thumbnailer

	seq    int64
	byID   map[int64]*entry
	byHash map[string]int64
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithThumbnailer(t storage.Thumbnailer) Option {
	return func(s *Store) { s.thumbnail = t }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		thumbnail: imaging.Thumbnail,
		byID:      make(map[int64]*entry),
		byHash:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Now() time.Time { return s.now() }
func (s *Store) Close() error   { return nil }

// stamp truncates to the millisecond like the sqlite columns.
func (s *Store) stamp() time.Time {
	return time.UnixMilli(s.now().UnixMilli())
}

func (s *Store) Record(ctx context.Context, payload []byte, kind core.Kind, mime, hash string) (int64, error) {
	if len(payload) == 0 {
		return 0, errors.New("record: empty payload")
	}
	if _, err := core.ParseKind(string(kind)); err != nil {
		return 0, fmt.Errorf("record: %w", err)
	}
	if hash == "" {
		hash = core.Fingerprint(payload)
	}
	if mime == "" && kind == core.KindText {
		mime = core.MIMEText
	}

	// Thumbnails are produced outside the lock.
	var thumb []byte
	if kind == core.KindImage && s.thumbnail != nil {
		s.mu.RLock()
		_, exists := s.byHash[hash]
		s.mu.RUnlock()
		if !exists {
			t, err := s.thumbnail(payload)
			if err != nil {
				logging.FromContext(ctx).Warn().Err(err).Str("hash", hash).Msg("thumbnail generation failed, storing without thumbnail")
			} else {
				thumb = t
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	if id, ok := s.byHash[hash]; ok {
		e := s.byID[id]
		if now.After(e.item.LastUsedAt) {
			e.item.LastUsedAt = now
		}
		return id, nil
	}

	s.seq++
	it := core.Item{
		ID:         s.seq,
		Hash:       hash,
		Kind:       kind,
		MIME:       mime,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	e := &entry{payload: append([]byte(nil), payload...)}
	switch kind {
	case core.KindText:
		text := string(payload)
		it.Title = core.Title(text)
		it.Text = text
		e.folded = core.Fold(text)
	case core.KindImage:
		it.Title = core.ImageTitle(hash)
		it.Thumbnail = thumb
	}
	e.item = it

	s.byID[it.ID] = e
	s.byHash[hash] = it.ID
	return it.ID, nil
}

// sorted returns matching items newest first. Caller holds the read lock.
func (s *Store) sorted(limit int, keep func(*entry) bool) []core.Item {
	out := make([]core.Item, 0)
	for _, e := range s.byID {
		if keep(e) {
			it := e.item
			it.Thumbnail = bytes.Clone(it.Thumbnail)
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit = storage.ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) List(ctx context.Context, limit int, starredOnly bool) ([]core.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(limit, func(e *entry) bool {
		return !starredOnly || e.item.Starred
	}), nil
}

func (s *Store) Gallery(ctx context.Context, limit int) ([]core.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(limit, func(e *entry) bool {
		return e.item.Kind == core.KindImage
	}), nil
}

func (s *Store) Search(ctx context.Context, query string, limit int) ([]core.Item, error) {
	_ = ctx
	terms := core.Terms(query)
	if len(terms) == 0 {
		return []core.Item{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(limit, func(e *entry) bool {
		return e.item.Kind == core.KindText && core.MatchTerms(e.folded, terms)
	}), nil
}

func (s *Store) SetStarred(ctx context.Context, id int64, starred bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return core.NotFoundError(id)
	}
	e.item.Starred = starred
	return nil
}

func (s *Store) Touch(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return core.NotFoundError(id)
	}
	if now := s.stamp(); now.After(e.item.LastUsedAt) {
		e.item.LastUsedAt = now
	}
	return nil
}

func (s *Store) Payload(ctx context.Context, id int64) (core.Payload, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return core.Payload{}, core.NotFoundError(id)
	}
	return core.Payload{
		Kind: e.item.Kind,
		MIME: e.item.MIME,
		Data: append([]byte(nil), e.payload...),
	}, nil
}

// remove drops one entry. Caller holds the write lock.
func (s *Store) remove(id int64) {
	e := s.byID[id]
	delete(s.byHash, e.item.Hash)
	delete(s.byID, id)
}

func (s *Store) Delete(ctx context.Context, ids []int64) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.byID[id]; !ok {
			continue
		}
		s.remove(id)
		n++
	}
	return n, nil
}

func (s *Store) DeleteUnstarred(ctx context.Context) (core.DeleteCounts, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts core.DeleteCounts
	for id, e := range s.byID {
		if e.item.Starred {
			continue
		}
		if e.item.Kind == core.KindImage {
			counts.Images++
		} else {
			counts.Items++
		}
		s.remove(id)
	}
	return counts, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, protectStarred bool) (int, error) {
	_ = ctx
	if maxAge <= 0 {
		return 0, fmt.Errorf("delete_older_than: max age must be positive, got %s", maxAge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.stamp().Add(-maxAge)
	n := 0
	for id, e := range s.byID {
		if protectStarred && e.item.Starred {
			continue
		}
		if e.item.LastUsedAt.Before(cutoff) {
			s.remove(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st core.Stats
	for _, e := range s.byID {
		st.Total++
		if e.item.Kind == core.KindImage {
			st.Images++
		}
		if e.item.Starred {
			st.Starred++
		}
	}
	return st, nil
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

// Writer places content on the system clipboard.
type Writer interface {
	Write(ctx context.Context, mime string, data []byte) error
}

// Settings is the get_settings payload.
type Settings struct {
	UI       any `json:"ui"`
	Grid     any `json:"grid"`
	Behavior any `json:"behavior"`
}

// RetentionStatus reports the background pruning loop.
type RetentionStatus struct {
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDeleted  int        `json:"last_deleted"`
	TotalDeleted int        `json:"total_deleted"`
	LastError    string     `json:"last_error,omitempty"`
}

// StatsResult is the stats payload. Retention is omitted when no loop
// is attached.
type StatsResult struct {
	core.Stats
	Retention *RetentionStatus `json:"retention,omitempty"`
}

// Handlers maps protocol commands onto the store.
type Handlers struct {
	Store     storage.Store
	Writer    Writer
	Settings  func() Settings
	Retention func() RetentionStatus
}

// Register installs every command on srv.
func (h *Handlers) Register(srv *Server) {
	srv.Handle(CmdList, h.list)
	srv.Handle(CmdSearch, h.search)
	srv.Handle(CmdGallery, h.gallery)
	srv.Handle(CmdStar, h.star)
	srv.Handle(CmdCopy, h.copy)
	srv.Handle(CmdDeleteItems, h.deleteItems)
	srv.Handle(CmdDeleteAllExceptStarred, h.deleteAllExceptStarred)
	srv.Handle(CmdGetSettings, h.getSettings)
	srv.Handle(CmdStats, h.stats)
}

func limitArg(req Request) (int, error) {
	n, _, err := req.Int("limit")
	if err != nil {
		return 0, err
	}
	return storage.ClampLimit(int(n)), nil
}

func requireID(req Request) (int64, error) {
	id, ok, err := req.Int("id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, protocolErrorf("%s requires id", req.Cmd)
	}
	return id, nil
}

func (h *Handlers) list(ctx context.Context, req Request) (any, error) {
	limit, err := limitArg(req)
	if err != nil {
		return nil, err
	}
	starredOnly, _, err := req.Bool("starred_only")
	if err != nil {
		return nil, err
	}
	items, err := h.Store.List(ctx, limit, starredOnly)
	if err != nil {
		return nil, err
	}
	return summaries(items), nil
}

func (h *Handlers) search(ctx context.Context, req Request) (any, error) {
	query, ok, err := req.String("query")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, protocolErrorf("search requires query")
	}
	limit, err := limitArg(req)
	if err != nil {
		return nil, err
	}
	items, err := h.Store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return summaries(items), nil
}

func (h *Handlers) gallery(ctx context.Context, req Request) (any, error) {
	limit, err := limitArg(req)
	if err != nil {
		return nil, err
	}
	items, err := h.Store.Gallery(ctx, limit)
	if err != nil {
		return nil, err
	}
	return summaries(items), nil
}

func (h *Handlers) star(ctx context.Context, req Request) (any, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	value, ok, err := req.Bool("value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, protocolErrorf("star requires value")
	}
	if err := h.Store.SetStarred(ctx, id, value); err != nil {
		return nil, err
	}
	return map[string]bool{"updated": true}, nil
}

func (h *Handlers) copy(ctx context.Context, req Request) (any, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	p, err := h.Store.Payload(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Writer == nil {
		return nil, fmt.Errorf("clipboard writer unavailable: %w", core.ErrToolMissing)
	}
	if err := h.Writer.Write(ctx, p.MIME, p.Data); err != nil {
		return nil, err
	}

	// The item may have been deleted while the write ran; the copy itself
	// still succeeded.
	if err := h.Store.Touch(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
		logging.FromContext(ctx).Warn().Err(err).Int64("id", id).Msg("failed to touch copied item")
	}
	return map[string]bool{"copied": true}, nil
}

func (h *Handlers) deleteItems(ctx context.Context, req Request) (any, error) {
	ids, ok, err := req.Ints("ids")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, protocolErrorf("delete_items requires ids")
	}
	n, err := h.Store.Delete(ctx, ids)
	if err != nil {
		return nil, err
	}
	return map[string]int{"deleted_count": n}, nil
}

func (h *Handlers) deleteAllExceptStarred(ctx context.Context, _ Request) (any, error) {
	counts, err := h.Store.DeleteUnstarred(ctx)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (h *Handlers) getSettings(context.Context, Request) (any, error) {
	if h.Settings == nil {
		return Settings{UI: struct{}{}, Grid: struct{}{}, Behavior: struct{}{}}, nil
	}
	return h.Settings(), nil
}

func (h *Handlers) stats(ctx context.Context, _ Request) (any, error) {
	s, err := h.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := StatsResult{Stats: s}
	if h.Retention != nil {
		r := h.Retention()
		out.Retention = &r
	}
	return out, nil
}

package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/storage/memory"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	err  error
	mime string
	data []byte
}

func (w *fakeWriter) Write(_ context.Context, mime string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.mime = mime
	w.data = append([]byte(nil), data...)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	path   string
	store  *memory.Store
	writer *fakeWriter
	clock  *clock
	cancel context.CancelFunc
	done   chan error
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "s.sock")
}

func startServer(t *testing.T) *harness {
	t.Helper()

	c := &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	h := &harness{
		path:   testSocketPath(t),
		store:  memory.New(memory.WithClock(c.Now)),
		writer: &fakeWriter{},
		clock:  c,
		done:   make(chan error, 1),
	}

	srv := NewServer(h.path)
	handlers := &Handlers{
		Store:  h.store,
		Writer: h.writer,
		Settings: func() Settings {
			return Settings{
				UI:       map[string]any{"width": 480},
				Grid:     map[string]any{"columns": 3},
				Behavior: map[string]any{"close_on_copy": true},
			}
		},
	}
	handlers.Register(srv)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-h.done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) *Client {
	t.Helper()
	c, err := Dial(context.Background(), h.path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) record(t *testing.T, text string) int64 {
	t.Helper()
	id, err := h.store.Record(context.Background(), []byte(text), core.KindText, core.MIMEText, "")
	require.NoError(t, err)
	return id
}

func TestServer_DeleteItemsIgnoresUnknownIDs(t *testing.T) {
	h := startServer(t)
	a := h.record(t, "one")
	b := h.record(t, "two")
	h.record(t, "three")

	c := h.dial(t)
	var out map[string]int
	require.NoError(t, c.Call(context.Background(), CmdDeleteItems, map[string]any{"ids": []int64{a, b, 999}}, &out))
	assert.Equal(t, map[string]int{"deleted_count": 2}, out)

	line := fmt.Sprintf(`{"cmd":"delete_items","args":{"ids":[%d,%d,999]}}`, a, b)
	resp, err := c.Raw(context.Background(), []byte(line))
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.JSONEq(t, `{"deleted_count":0}`, string(resp.Data))
}

func TestServer_MalformedRequestKeepsConnectionOpen(t *testing.T) {
	h := startServer(t)
	h.record(t, "hello")
	c := h.dial(t)

	resp, err := c.Raw(context.Background(), []byte(`{"cmd": "list", "args": `))
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "invalid json")

	var items []Summary
	require.NoError(t, c.Call(context.Background(), CmdList, nil, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "hello", items[0].Text)
}

func TestServer_UnknownCommand(t *testing.T) {
	h := startServer(t)
	c := h.dial(t)

	err := c.Call(context.Background(), "frobnicate", nil, nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unknown cmd: frobnicate", se.Message)
}

func TestServer_StarAndNotFound(t *testing.T) {
	h := startServer(t)
	id := h.record(t, "keep me")
	c := h.dial(t)
	ctx := context.Background()

	var out map[string]bool
	require.NoError(t, c.Call(ctx, CmdStar, map[string]any{"id": id, "value": true}, &out))
	assert.True(t, out["updated"])

	var starred []Summary
	require.NoError(t, c.Call(ctx, CmdList, map[string]any{"starred_only": true}, &starred))
	require.Len(t, starred, 1)
	assert.True(t, starred[0].Starred)

	err := c.Call(ctx, CmdStar, map[string]any{"id": 4242, "value": true}, nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "not found: item 4242", se.Message)

	err = c.Call(ctx, CmdStar, map[string]any{"id": id}, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "star requires value", se.Message)
}

func TestServer_TopLevelArgs(t *testing.T) {
	h := startServer(t)
	id := h.record(t, "flat")
	c := h.dial(t)

	resp, err := c.Raw(context.Background(), []byte(fmt.Sprintf(`{"cmd":"STAR","id":%d,"value":true}`, id)))
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	s, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Starred)
}

func TestServer_SearchAndLimit(t *testing.T) {
	h := startServer(t)
	for i := 0; i < 5; i++ {
		h.record(t, fmt.Sprintf("Note %d", i))
		h.clock.Advance(time.Second)
	}
	h.record(t, "unrelated")
	c := h.dial(t)
	ctx := context.Background()

	var found []Summary
	require.NoError(t, c.Call(ctx, CmdSearch, map[string]any{"query": "NOTE", "limit": 2}, &found))
	require.Len(t, found, 2)
	assert.Equal(t, "Note 4", found[0].Text)
	assert.Equal(t, "Note 3", found[1].Text)

	err := c.Call(ctx, CmdSearch, nil, nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "search requires query", se.Message)

	var all []Summary
	require.NoError(t, c.Call(ctx, CmdList, map[string]any{"limit": 0}, &all))
	assert.Len(t, all, 6)
}

func TestServer_CopyWritesAndTouches(t *testing.T) {
	h := startServer(t)
	old := h.record(t, "copy me")
	h.clock.Advance(time.Minute)
	h.record(t, "newer")
	h.clock.Advance(time.Minute)

	c := h.dial(t)
	var out map[string]bool
	require.NoError(t, c.Call(context.Background(), CmdCopy, map[string]any{"id": old}, &out))
	assert.Equal(t, map[string]bool{"copied": true}, out)

	h.writer.mu.Lock()
	assert.Equal(t, core.MIMEText, h.writer.mime)
	assert.Equal(t, []byte("copy me"), h.writer.data)
	h.writer.mu.Unlock()

	items, err := h.store.List(context.Background(), 10, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, old, items[0].ID, "copied item moves to the front")
}

func TestServer_CopyToolMissing(t *testing.T) {
	h := startServer(t)
	id := h.record(t, "x")
	h.writer.mu.Lock()
	h.writer.err = fmt.Errorf("wl-copy not found in PATH: install wl-clipboard: %w", core.ErrToolMissing)
	h.writer.mu.Unlock()

	err := h.dial(t).Call(context.Background(), CmdCopy, map[string]any{"id": id}, nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "install wl-clipboard")
}

func TestServer_DeleteAllExceptStarred(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	keep := h.record(t, "keep")
	h.record(t, "drop")
	_, err := h.store.Record(ctx, []byte("png"), core.KindImage, "image/png", "")
	require.NoError(t, err)
	require.NoError(t, h.store.SetStarred(ctx, keep, true))

	c := h.dial(t)
	var counts core.DeleteCounts
	require.NoError(t, c.Call(ctx, CmdDeleteAllExceptStarred, nil, &counts))
	assert.Equal(t, core.DeleteCounts{Items: 1, Images: 1}, counts)

	var stats core.Stats
	require.NoError(t, c.Call(ctx, CmdStats, nil, &stats))
	assert.Equal(t, core.Stats{Total: 1, Starred: 1}, stats)
}

func TestServer_GetSettings(t *testing.T) {
	h := startServer(t)
	resp, err := h.dial(t).Raw(context.Background(), []byte(`{"cmd":"get_settings"}`))
	require.NoError(t, err)
	require.True(t, resp.OK)
	assert.JSONEq(t, `{"ui":{"width":480},"grid":{"columns":3},"behavior":{"close_on_copy":true}}`, string(resp.Data))
}

func TestServer_OversizeRequestClosesConnection(t *testing.T) {
	h := startServer(t)

	conn, err := net.Dial("unix", h.path)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	go func() { _, _ = conn.Write(bytes.Repeat([]byte("x"), MaxRequestSize)) }()

	dec := json.NewDecoder(conn)
	var resp Response
	require.NoError(t, dec.Decode(&resp))
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "exceeds")

	assert.Error(t, dec.Decode(&resp), "connection is closed after an oversize request")
}

func TestServer_ShutdownClosesIdleConnectionsAndRemovesSocket(t *testing.T) {
	h := startServer(t)
	c := h.dial(t)
	require.NoError(t, c.Call(context.Background(), CmdStats, nil, nil))

	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop with an idle client attached")
	}
	h.done <- nil

	_, err := os.Stat(h.path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestServer_RemovesStaleSocketFile(t *testing.T) {
	path := testSocketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	srv := NewServer(path)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cancel()
	require.NoError(t, <-done)
}

func TestServer_CopyUnknownIDDoesNotWrite(t *testing.T) {
	h := startServer(t)
	h.record(t, "present")

	err := h.dial(t).Call(context.Background(), CmdCopy, map[string]any{"id": 999}, nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "not found: item 999", se.Message)

	h.writer.mu.Lock()
	defer h.writer.mu.Unlock()
	assert.Nil(t, h.writer.data)
}

func TestServer_ConcurrentClients(t *testing.T) {
	h := startServer(t)
	for i := 0; i < 10; i++ {
		h.record(t, fmt.Sprintf("item %d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Dial(context.Background(), h.path)
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			for n := 0; n < 20; n++ {
				var items []Summary
				if err := c.Call(context.Background(), CmdList, nil, &items); err != nil {
					errs <- err
					return
				}
				if len(items) != 10 {
					errs <- fmt.Errorf("list returned %d items", len(items))
					return
				}
				var stats StatsResult
				if err := c.Call(context.Background(), CmdStats, nil, &stats); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_StarRacesDelete(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	for n := 0; n < 20; n++ {
		id := h.record(t, fmt.Sprintf("race %d", h.clock.Now().UnixNano()))
		h.clock.Advance(time.Millisecond)

		starrer, deleter := h.dial(t), h.dial(t)
		var wg sync.WaitGroup
		var starErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			starErr = starrer.Call(ctx, CmdStar, map[string]any{"id": id, "value": true}, nil)
		}()
		go func() {
			defer wg.Done()
			deleteErr = deleter.Call(ctx, CmdDeleteItems, map[string]any{"ids": []int64{id}}, nil)
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if starErr != nil {
			var se *ServerError
			require.ErrorAs(t, starErr, &se)
			assert.Equal(t, fmt.Sprintf("not found: item %d", id), se.Message)
		}
		_, err := h.store.Payload(ctx, id)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
}

func TestServer_StatsIncludesRetention(t *testing.T) {
	path := testSocketPath(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	srv := NewServer(path)
	(&Handlers{
		Store: memory.New(),
		Retention: func() RetentionStatus {
			return RetentionStatus{LastRun: &at, LastDeleted: 3, TotalDeleted: 7}
		},
	}).Register(srv)
	serveInBackground(t, srv)

	c, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Raw(context.Background(), []byte(`{"cmd":"stats"}`))
	require.NoError(t, err)
	require.True(t, resp.OK)
	assert.JSONEq(t, `{"total":0,"images":0,"starred":0,
		"retention":{"last_run":"2026-04-01T09:00:00Z","last_deleted":3,"total_deleted":7}}`, string(resp.Data))
}

func TestServer_RefusesLiveSocket(t *testing.T) {
	h := startServer(t)

	err := NewServer(h.path).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already listening")

	// The running server still owns the socket.
	require.NoError(t, h.dial(t).Call(context.Background(), CmdStats, nil, nil))
}

func TestServer_ShutdownWithManyIdleClients(t *testing.T) {
	h := startServer(t)
	for n := 0; n < 16; n++ {
		c := h.dial(t)
		require.NoError(t, c.Call(context.Background(), CmdStats, nil, nil))
	}

	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop with idle clients attached")
	}
	h.done <- nil
}

// flakyListener fails every Accept until it is closed.
type flakyListener struct {
	net.Listener
	accepts atomic.Int32
	closed  chan struct{}
	once    sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.accepts.Add(1)
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
		return nil, errors.New("accept: too many open files")
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.Listener.Close()
}

func TestServer_AcceptErrorsBackOff(t *testing.T) {
	path := testSocketPath(t)
	srv := NewServer(path)
	var fl *flakyListener
	srv.listen = func(network, address string) (net.Listener, error) {
		l, err := net.Listen(network, address)
		if err != nil {
			return nil, err
		}
		fl = &flakyListener{Listener: l, closed: make(chan struct{})}
		return fl, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Less(t, int(fl.accepts.Load()), 20, "failed accepts are retried without a pause")
}

func serveInBackground(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/its-jojoo/otterclipd/internal/adapter/ipc"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage/memory"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T) (string, *memory.Store) {
	t.Helper()
	st := memory.New()
	return serveHandlers(t, &ipc.Handlers{Store: st}), st
}

func serveHandlers(t *testing.T, h *ipc.Handlers) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")

	srv := ipc.NewServer(path)
	h.Register(srv)

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
		t.Fatalf("server exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCtl_ListStarAndStats(t *testing.T) {
	socket, st := serve(t)
	id, err := st.Record(context.Background(), []byte("echo   hello\nworld"), core.KindText, core.MIMEText, "")
	require.NoError(t, err)

	out, err := execute(t, "--socket", socket, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[text] echo hello world")

	out, err = execute(t, "--socket", socket, "star", "1")
	require.NoError(t, err)
	assert.Equal(t, "starred 1\n", out)
	assert.Equal(t, int64(1), id)

	out, err = execute(t, "--socket", socket, "stats")
	require.NoError(t, err)
	assert.Equal(t, "total 1, images 0, starred 1\n", out)

	_, err = execute(t, "--socket", socket, "star", "abc")
	assert.EqualError(t, err, `invalid id "abc"`)
}

func TestCtl_ServerErrorsSurface(t *testing.T) {
	socket, st := serve(t)
	id, err := st.Record(context.Background(), []byte("x"), core.KindText, core.MIMEText, "")
	require.NoError(t, err)

	_, err = execute(t, "--socket", socket, "copy", strconv.FormatInt(id, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clipboard writer unavailable")

	_, err = execute(t, "--socket", socket, "copy", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found: item 7")

	_, err = execute(t, "--socket", socket, "star", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found: item 7")
}

func TestCtl_StatsShowsRetention(t *testing.T) {
	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.Local)
	socket := serveHandlers(t, &ipc.Handlers{
		Store: memory.New(),
		Retention: func() ipc.RetentionStatus {
			return ipc.RetentionStatus{LastRun: &at, LastDeleted: 2, TotalDeleted: 5, LastError: "disk full"}
		},
	})

	out, err := execute(t, "--socket", socket, "stats")
	require.NoError(t, err)
	assert.Equal(t, "total 0, images 0, starred 0\n"+
		"retention: last run 2026-05-02 08:30:00, deleted 2 (5 since start)\n"+
		"retention error: disk full\n", out)

	out, err = execute(t, "--socket", socket, "--json", "stats")
	require.NoError(t, err)
	var res ipc.StatsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Retention)
	assert.Equal(t, 5, res.Retention.TotalDeleted)
}

func TestCtl_Export(t *testing.T) {
	socket, st := serve(t)
	ctx := context.Background()
	_, err := st.Record(ctx, []byte("first"), core.KindText, core.MIMEText, "")
	require.NoError(t, err)
	_, err = st.Record(ctx, []byte("\x89PNG"), core.KindImage, "image/png", "")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "export.json")
	out, err := execute(t, "--socket", socket, "export", "--out", file)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 items")

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	var items []ExportItem
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 2)

	byKind := map[string]ExportItem{}
	for _, it := range items {
		byKind[it.Kind] = it
	}
	assert.Equal(t, "first", byKind["text"].Content)
	assert.Equal(t, "image/png", byKind["image"].MIME)
	assert.Empty(t, byKind["image"].Content)
	assert.Equal(t, core.Fingerprint([]byte("first")), byKind["text"].Hash)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("  a\n\tb ", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

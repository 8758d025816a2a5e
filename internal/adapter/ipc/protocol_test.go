package ipc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_Errors(t *testing.T) {
	cases := []struct {
		name string
		line string
		want string
	}{
		{"not json", `{not json`, "invalid json"},
		{"not an object", `[1,2]`, "invalid json"},
		{"null", `null`, "invalid json"},
		{"missing cmd", `{"args":{}}`, "missing cmd"},
		{"blank cmd", `{"cmd":"  "}`, "missing cmd"},
		{"numeric cmd", `{"cmd":7}`, "cmd must be a string"},
		{"args not object", `{"cmd":"list","args":[1]}`, "args must be an object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.line))
			require.Error(t, err)
			var pe *ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseRequest_CaseInsensitiveCmd(t *testing.T) {
	req, err := ParseRequest([]byte(`{"cmd":"Delete_Items","args":{"ids":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, CmdDeleteItems, req.Cmd)

	ids, ok, err := req.Ints("ids")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestRequest_ArgsTakePrecedenceOverTopLevel(t *testing.T) {
	req, err := ParseRequest([]byte(`{"cmd":"star","id":1,"value":false,"args":{"id":2}}`))
	require.NoError(t, err)

	id, ok, err := req.Int("id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	value, ok, err := req.Bool("value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, value)

	_, ok, err = req.String("cmd")
	require.NoError(t, err)
	assert.False(t, ok, "cmd is not an argument")
}

func TestRequest_TypeErrors(t *testing.T) {
	req, err := ParseRequest([]byte(`{"cmd":"list","args":{"limit":"ten","starred_only":1,"ids":["a"],"query":5}}`))
	require.NoError(t, err)

	_, _, err = req.Int("limit")
	assert.EqualError(t, err, "limit must be an integer")
	_, _, err = req.Bool("starred_only")
	assert.EqualError(t, err, "starred_only must be a boolean")
	_, _, err = req.Ints("ids")
	assert.EqualError(t, err, "ids must be an array of integers")
	_, _, err = req.String("query")
	assert.EqualError(t, err, "query must be a string")
}

func TestRequest_NullArgIsAbsent(t *testing.T) {
	req, err := ParseRequest([]byte(`{"cmd":"list","args":{"limit":null}}`))
	require.NoError(t, err)
	_, ok, err := req.Int("limit")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRequest_RoundTrip(t *testing.T) {
	line, err := NewRequest(CmdSearch, map[string]any{"query": "foo"})
	require.NoError(t, err)

	req, err := ParseRequest(line)
	require.NoError(t, err)
	assert.Equal(t, CmdSearch, req.Cmd)
	q, ok, err := req.String("query")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "foo", q)
}

func TestNewSummary(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	text := NewSummary(core.Item{
		ID: 1, Kind: core.KindText, MIME: core.MIMEText,
		Text: "https://example.com", Title: "https://example.com",
		CreatedAt: at, LastUsedAt: at,
	})
	assert.Equal(t, core.ContentTypeURL, text.ContentType)
	assert.Equal(t, time.UTC, text.LastUsedAt.Location())
	assert.False(t, text.HasThumbnail)

	img := NewSummary(core.Item{ID: 2, Kind: core.KindImage, MIME: "image/png", Thumbnail: []byte{1, 2, 3}})
	assert.True(t, img.HasThumbnail)
	assert.Equal(t, "AQID", img.Thumbnail)
	assert.Empty(t, img.Text)

	raw, err := json.Marshal(img)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"text"`)
	assert.Contains(t, string(raw), `"kind":"image"`)
}

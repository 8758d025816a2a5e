// Package ipc serves the clip history to local clients over a Unix socket.
// Every message is one JSON object on its own line.
package ipc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
)

// Command names.
const (
	CmdList                   = "list"
	CmdSearch                 = "search"
	CmdGallery                = "gallery"
	CmdStar                   = "star"
	CmdCopy                   = "copy"
	CmdDeleteItems            = "delete_items"
	CmdDeleteAllExceptStarred = "delete_all_except_starred"
	CmdGetSettings            = "get_settings"
	CmdStats                  = "stats"
)

// ProtocolError reports a request that could not be decoded.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return e.Msg }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Request is a decoded command. Arguments may be nested under "args" or
// placed next to "cmd"; nested values win.
type Request struct {
	Cmd  string
	args map[string]json.RawMessage
	top  map[string]json.RawMessage
}

// ParseRequest decodes one request line. The command name is lowercased.
func ParseRequest(line []byte) (Request, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(line, &top); err != nil {
		return Request{}, protocolErrorf("invalid json: %v", err)
	}
	if top == nil {
		return Request{}, protocolErrorf("invalid json: request must be a JSON object")
	}

	rawCmd, ok := top["cmd"]
	if !ok {
		return Request{}, protocolErrorf("missing cmd")
	}
	var cmd string
	if err := json.Unmarshal(rawCmd, &cmd); err != nil {
		return Request{}, protocolErrorf("cmd must be a string")
	}

	req := Request{
		Cmd: strings.ToLower(strings.TrimSpace(cmd)),
		top: top,
	}
	if rawArgs, ok := top["args"]; ok && !isNull(rawArgs) {
		if err := json.Unmarshal(rawArgs, &req.args); err != nil {
			return Request{}, protocolErrorf("args must be an object")
		}
	}
	if req.Cmd == "" {
		return Request{}, protocolErrorf("missing cmd")
	}
	return req, nil
}

// NewRequest builds a request for sending.
func NewRequest(cmd string, args map[string]any) ([]byte, error) {
	msg := map[string]any{"cmd": cmd}
	if len(args) > 0 {
		msg["args"] = args
	}
	return json.Marshal(msg)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func (r Request) lookup(key string) (json.RawMessage, bool) {
	if v, ok := r.args[key]; ok && !isNull(v) {
		return v, true
	}
	if key == "cmd" || key == "args" {
		return nil, false
	}
	if v, ok := r.top[key]; ok && !isNull(v) {
		return v, true
	}
	return nil, false
}

// Int returns an integer argument. ok is false when the key is absent.
func (r Request) Int(key string) (v int64, ok bool, err error) {
	raw, ok := r.lookup(key)
	if !ok {
		return 0, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, true, protocolErrorf("%s must be an integer", key)
	}
	return v, true, nil
}

func (r Request) Bool(key string) (v bool, ok bool, err error) {
	raw, ok := r.lookup(key)
	if !ok {
		return false, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, true, protocolErrorf("%s must be a boolean", key)
	}
	return v, true, nil
}

func (r Request) String(key string) (v string, ok bool, err error) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", true, protocolErrorf("%s must be a string", key)
	}
	return v, true, nil
}

func (r Request) Ints(key string) (v []int64, ok bool, err error) {
	raw, ok := r.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, true, protocolErrorf("%s must be an array of integers", key)
	}
	return v, true, nil
}

// Response is the envelope written for every request.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Summary is the wire form of a clip.
type Summary struct {
	ID           int64            `json:"id"`
	Kind         core.Kind        `json:"kind"`
	Hash         string           `json:"hash"`
	MIME         string           `json:"mime"`
	Title        string           `json:"title"`
	Text         string           `json:"text,omitempty"`
	ContentType  core.ContentType `json:"content_type,omitempty"`
	Thumbnail    string           `json:"thumbnail,omitempty"`
	HasThumbnail bool             `json:"has_thumbnail"`
	CreatedAt    time.Time        `json:"created_at"`
	LastUsedAt   time.Time        `json:"last_used_at"`
	Starred      bool             `json:"starred"`
}

func NewSummary(it core.Item) Summary {
	s := Summary{
		ID:         it.ID,
		Kind:       it.Kind,
		Hash:       it.Hash,
		MIME:       it.MIME,
		Title:      it.Title,
		CreatedAt:  it.CreatedAt.UTC(),
		LastUsedAt: it.LastUsedAt.UTC(),
		Starred:    it.Starred,
	}
	switch it.Kind {
	case core.KindText:
		s.Text = it.Text
		s.ContentType = core.DetectType(it.Text)
	case core.KindImage:
		if len(it.Thumbnail) > 0 {
			s.Thumbnail = base64.StdEncoding.EncodeToString(it.Thumbnail)
			s.HasThumbnail = true
		}
	}
	return s
}

func summaries(items []core.Item) []Summary {
	out := make([]Summary, 0, len(items))
	for _, it := range items {
		out = append(out, NewSummary(it))
	}
	return out
}

package core

import (
	"time"
)

// Item is one stored clipboard capture. Hash is unique across live items.
type Item struct {
	ID    int64  `json:"id"`
	Hash  string `json:"hash"`
	Kind  Kind   `json:"kind"`
	MIME  string `json:"mime"`
	Title string `json:"title"`

	// Text is set for KindText only. Payload bytes of images are not
	// loaded into summaries; fetch them with Store.Payload.
	Text      string `json:"text,omitempty"`
	Thumbnail []byte `json:"thumbnail,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`

	Starred bool `json:"starred"`
}

// Payload is the raw content of an item, as placed back on the clipboard.
type Payload struct {
	Kind Kind
	MIME string
	Data []byte
}

// DeleteCounts reports a bulk delete split by kind.
type DeleteCounts struct {
	Items  int `json:"deleted_items"`
	Images int `json:"deleted_images"`
}

// Stats summarizes the store contents.
type Stats struct {
	Total   int `json:"total"`
	Images  int `json:"images"`
	Starred int `json:"starred"`
}

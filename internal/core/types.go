package core

import "fmt"

// Kind is the stored representation of a clip.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindText, KindImage:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// ContentType is a display hint for text clips.
type ContentType string

const (
	ContentTypeText    ContentType = "text"
	ContentTypeURL     ContentType = "url"
	ContentTypeCommand ContentType = "command"
	ContentTypeCode    ContentType = "code"
)

const MIMEText = "text/plain"

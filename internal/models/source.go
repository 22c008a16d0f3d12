package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind identifies the retrieval mechanism used to read an account.
type SourceKind string

const (
	SourceKindXAPI    SourceKind = "x-api"
	SourceKindRSS     SourceKind = "rss"
	SourceKindBrowser SourceKind = "browser"
)

// Valid reports whether k names a supported retrieval mechanism.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindXAPI, SourceKindRSS, SourceKindBrowser:
		return true
	default:
		return false
	}
}

// PostID is a source-assigned post identifier. Older alert logs stored ids as
// JSON numbers, so decoding accepts both numbers and strings.
type PostID string

// UnmarshalJSON decodes a string or numeric id.
func (id *PostID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PostID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("post id must be a string or number: %w", err)
	}
	*id = PostID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id PostID) String() string {
	return string(id)
}

// RawPost is a post as returned by a retrieval collaborator, before any
// filtering or normalization.
type RawPost struct {
	ID        PostID
	Timestamp time.Time
	Text      string
}

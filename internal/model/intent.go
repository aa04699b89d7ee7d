package model

import (
	"fmt"
	"strings"
)

// Intent is the temporal focus of a health search
type Intent int

const (
	IntentAll   Intent = iota // every matching event
	IntentFirst               // the first / earliest occurrence
	IntentLast                // the last / most recent occurrence
)

func (i Intent) String() string {
	switch i {
	case IntentFirst:
		return "first"
	case IntentLast:
		return "last"
	default:
		return "all"
	}
}

// Singular reports whether the intent asks for one event rather than a list.
func (i Intent) Singular() bool {
	return i == IntentFirst || i == IntentLast
}

// MarshalText implements encoding.TextMarshaler
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Intent) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "first":
		*i = IntentFirst
	case "last":
		*i = IntentLast
	case "all", "":
		*i = IntentAll
	default:
		return fmt.Errorf("unknown search intent %q", string(text))
	}
	return nil
}

// ParsedQuery is the structured form of a free-text search query.
type ParsedQuery struct {
	OriginalQuery string `json:"original_query"`
	Intent        Intent `json:"intent"`
	CleanedQuery  string `json:"cleaned_query"`
}

// EmbeddingText returns the text to embed: the cleaned query, or the original
// query when cleaning stripped everything.
func (q ParsedQuery) EmbeddingText() string {
	if strings.TrimSpace(q.CleanedQuery) != "" {
		return q.CleanedQuery
	}
	return q.OriginalQuery
}

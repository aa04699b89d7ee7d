package model

import (
	"strings"

	"github.com/google/uuid"
)

// SearchRequest represents a search query request
type SearchRequest struct {
	Query          string     `json:"query" binding:"required"`
	PetID          *uuid.UUID `json:"pet_id,omitempty"`
	MatchThreshold *float64   `json:"match_threshold,omitempty"`
	MatchCount     *int       `json:"match_count,omitempty"`
}

// SearchResponse represents a search result response
type SearchResponse struct {
	Results       []SearchResult `json:"results"`
	Total         int            `json:"total"`
	Intent        Intent         `json:"intent"`
	OriginalQuery string         `json:"original_query"`
	CleanedQuery  string         `json:"cleaned_query"`
	Took          int64          `json:"took_ms"`
}

// EmbedQueryRequest is the body of the query-embedding endpoint
type EmbedQueryRequest struct {
	Query string `json:"query"`
}

// EmbedQueryResponse is returned by the query-embedding endpoint and by the
// hosted embedding function it mirrors.
type EmbedQueryResponse struct {
	Success    bool      `json:"success"`
	Query      string    `json:"query,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Webhook event types
const (
	WebhookInsert = "INSERT"
	WebhookUpdate = "UPDATE"
	WebhookDelete = "DELETE"
)

// WebhookPayload is a database change notification for a row that needs (re)embedding
type WebhookPayload struct {
	Type      string         `json:"type" binding:"required"`
	Table     string         `json:"table" binding:"required"`
	Schema    string         `json:"schema"`
	Record    WebhookRecord  `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// WebhookRecord carries the changed row's fields; only the ones relevant to
// the table are set.
type WebhookRecord struct {
	ID         uuid.UUID  `json:"id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	Name       *string    `json:"name,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	PetID      *uuid.UUID `json:"pet_id,omitempty"`
}

// WebhookResponse reports the outcome of an embedding webhook
type WebhookResponse struct {
	Success             bool      `json:"success"`
	Skipped             bool      `json:"skipped,omitempty"`
	ID                  uuid.UUID `json:"id"`
	Table               string    `json:"table"`
	EmbeddingDimensions int       `json:"embedding_dimensions,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// BackfillReport summarizes an embedding backfill run
type BackfillReport struct {
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// SearchLogEntry is one row of the search log
type SearchLogEntry struct {
	Query          string
	Intent         Intent
	CleanedQuery   string
	PetID          *uuid.UUID
	ResultCount    int
	EventIDs       []uuid.UUID
	ResponseTimeMs int64
}

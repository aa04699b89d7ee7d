package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Tables that carry embeddings
const (
	TableHealthCategories = "pet_health_categories"
	TableHealthEvents     = "pet_health_events"
)

// HealthCategory is a per-pet category of health events ("vomiting", "asthma attack")
type HealthCategory struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	PetID          uuid.UUID        `json:"pet_id" db:"pet_id"`
	Name           string           `json:"name" db:"name"`
	NameNormalized string           `json:"name_normalized" db:"name_normalized"`
	Embedding      *pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	CreatedBy      *uuid.UUID       `json:"created_by,omitempty" db:"created_by"`
}

// HealthEvent is a single journal entry for a category
type HealthEvent struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	CategoryID uuid.UUID        `json:"category_id" db:"category_id"`
	OccurredAt time.Time        `json:"occurred_at" db:"occurred_at"`
	Notes      *string          `json:"notes,omitempty" db:"notes"`
	Embedding  *pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	CreatedBy  *uuid.UUID       `json:"created_by,omitempty" db:"created_by"`
}

// EmbeddingSource is a row whose text needs embedding, with the text already assembled.
type EmbeddingSource struct {
	ID   uuid.UUID `db:"id"`
	Text string    `db:"text"`
}

// EmbeddingUpdate pairs a row id with its freshly generated embedding
type EmbeddingUpdate struct {
	ID        uuid.UUID
	Embedding []float32
}

// SearchResult is one health event matched by a semantic search
type SearchResult struct {
	EventID        uuid.UUID  `json:"event_id" db:"event_id"`
	CategoryID     uuid.UUID  `json:"category_id" db:"category_id"`
	CategoryName   string     `json:"category_name" db:"category_name"`
	OccurredAt     time.Time  `json:"occurred_at" db:"occurred_at"`
	Notes          *string    `json:"notes" db:"notes"`
	PetID          uuid.UUID  `json:"pet_id" db:"pet_id"`
	PetName        string     `json:"pet_name" db:"pet_name"`
	CreatedByID    *uuid.UUID `json:"created_by_id" db:"created_by_id"`
	CreatedByEmail string     `json:"created_by_email" db:"created_by_email"`
	Similarity     float64    `json:"similarity" db:"similarity"`
}

// EventText builds the text embedded for a health event: the category name,
// followed by the notes when there are any.
func EventText(categoryName string, notes *string) string {
	if notes == nil || isBlank(*notes) {
		return categoryName
	}
	return categoryName + ". " + *notes
}

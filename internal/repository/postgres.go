package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// usersTable holds account emails; the hosted platform keeps them in its auth schema.
const usersTable = "auth.users"

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection pool
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// resultColumns is the projection shared by similarity search and event lookup
const resultColumns = `
			e.id AS event_id,
			e.category_id,
			c.name AS category_name,
			e.occurred_at,
			e.notes,
			c.pet_id,
			p.name AS pet_name,
			e.created_by AS created_by_id,
			COALESCE(u.email, '') AS created_by_email`

const resultJoins = `
		FROM pet_health_events e
		JOIN pet_health_categories c ON c.id = e.category_id
		JOIN pets p ON p.id = c.pet_id
		LEFT JOIN ` + usersTable + ` u ON u.id = e.created_by`

// buildSimilarityQuery builds the nearest-neighbour query over event embeddings.
// Embeddings are unit length, so the negated inner product is the cosine similarity.
func buildSimilarityQuery(embedding []float32, petID *uuid.UUID, threshold float64, limit int) (string, []any) {
	args := []any{pgvector.NewVector(embedding), threshold}
	argIndex := 3

	whereClauses := []string{
		"e.embedding IS NOT NULL",
		"(e.embedding <#> $1::vector) * -1 >= $2",
	}

	if petID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("c.pet_id = $%d", argIndex))
		args = append(args, *petID)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT %s,
			(e.embedding <#> $1::vector) * -1 AS similarity
		%s
		WHERE %s
		ORDER BY e.embedding <#> $1::vector
		LIMIT $%d
	`, resultColumns, resultJoins, strings.Join(whereClauses, " AND "), argIndex)
	args = append(args, limit)

	return query, args
}

// SearchSimilarEvents returns events whose embedding similarity to the given
// vector is at least threshold, most similar first, optionally scoped to one pet.
func (r *PostgresRepository) SearchSimilarEvents(
	ctx context.Context,
	embedding []float32,
	petID *uuid.UUID,
	threshold float64,
	limit int,
) ([]model.SearchResult, error) {
	query, args := buildSimilarityQuery(embedding, petID, threshold, limit)

	results := []model.SearchResult{}
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search health events: %w", err)
	}
	return results, nil
}

// GetEventByID retrieves a single health event with its category and pet
func (r *PostgresRepository) GetEventByID(ctx context.Context, eventID uuid.UUID) (*model.SearchResult, error) {
	var result model.SearchResult
	query := fmt.Sprintf(`
		SELECT %s,
			0::float8 AS similarity
		%s
		WHERE e.id = $1
	`, resultColumns, resultJoins)

	err := r.db.GetContext(ctx, &result, query, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get health event: %w", err)
	}
	return &result, nil
}

// GetCategoryName returns the name of a health category
func (r *PostgresRepository) GetCategoryName(ctx context.Context, categoryID uuid.UUID) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, `SELECT name FROM pet_health_categories WHERE id = $1`, categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get category: %w", err)
	}
	return name, nil
}

// embeddingTable guards the table name interpolated into UPDATE statements
func embeddingTable(table string) (string, error) {
	switch table {
	case model.TableHealthEvents, model.TableHealthCategories:
		return table, nil
	default:
		return "", fmt.Errorf("table %q has no embedding column", table)
	}
}

// UpdateEmbedding updates the embedding vector of one event or category row
func (r *PostgresRepository) UpdateEmbedding(ctx context.Context, table string, id uuid.UUID, embedding []float32) error {
	table, err := embeddingTable(table)
	if err != nil {
		return err
	}

	vec := pgvector.NewVector(embedding)
	res, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET embedding = $1 WHERE id = $2`, vec, id)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s row %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// BatchUpdateEmbeddings updates embeddings for multiple rows of one table in a single transaction
func (r *PostgresRepository) BatchUpdateEmbeddings(ctx context.Context, table string, items []model.EmbeddingUpdate) (int, []string) {
	success := 0
	var errs []string

	table, err := embeddingTable(table)
	if err != nil {
		return 0, []string{err.Error()}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errs
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `UPDATE `+table+` SET embedding = $1 WHERE id = $2`)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errs
	}
	defer stmt.Close()

	for _, item := range items {
		vec := pgvector.NewVector(item.Embedding)
		if _, err := stmt.ExecContext(ctx, vec, item.ID); err != nil {
			errs = append(errs, fmt.Sprintf("%s %s: %v", table, item.ID, err))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errs
	}

	return success, errs
}

// ListEventsWithoutEmbedding returns up to limit events that still need an embedding,
// with the text to embed already assembled.
func (r *PostgresRepository) ListEventsWithoutEmbedding(ctx context.Context, limit int) ([]model.EmbeddingSource, error) {
	var rows []struct {
		ID           uuid.UUID `db:"id"`
		CategoryName string    `db:"category_name"`
		Notes        *string   `db:"notes"`
	}
	query := `
		SELECT e.id, c.name AS category_name, e.notes
		FROM pet_health_events e
		JOIN pet_health_categories c ON c.id = e.category_id
		WHERE e.embedding IS NULL
		ORDER BY e.created_at
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list events without embedding: %w", err)
	}

	sources := make([]model.EmbeddingSource, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, model.EmbeddingSource{
			ID:   row.ID,
			Text: model.EventText(row.CategoryName, row.Notes),
		})
	}
	return sources, nil
}

// ListCategoriesWithoutEmbedding returns up to limit categories that still need an embedding
func (r *PostgresRepository) ListCategoriesWithoutEmbedding(ctx context.Context, limit int) ([]model.EmbeddingSource, error) {
	sources := []model.EmbeddingSource{}
	query := `
		SELECT id, name AS text
		FROM pet_health_categories
		WHERE embedding IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &sources, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list categories without embedding: %w", err)
	}
	return sources, nil
}

// LogSearch logs a search query
func (r *PostgresRepository) LogSearch(ctx context.Context, entry model.SearchLogEntry) error {
	eventIDs := make([]string, len(entry.EventIDs))
	for i, id := range entry.EventIDs {
		eventIDs[i] = id.String()
	}

	logQuery := `
		INSERT INTO search_logs (query, intent, cleaned_query, pet_id, result_count, returned_event_ids, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7)
	`
	_, err := r.db.ExecContext(ctx, logQuery,
		entry.Query,
		entry.Intent.String(),
		entry.CleanedQuery,
		entry.PetID,
		entry.ResultCount,
		pq.Array(eventIDs),
		entry.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

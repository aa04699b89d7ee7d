package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bilozorDev/orests-journal-ios-app/internal/metrics"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EmbeddingStore reads the text behind event and category rows and writes their embeddings back
type EmbeddingStore interface {
	GetCategoryName(ctx context.Context, categoryID uuid.UUID) (string, error)
	UpdateEmbedding(ctx context.Context, table string, id uuid.UUID, embedding []float32) error
	BatchUpdateEmbeddings(ctx context.Context, table string, items []model.EmbeddingUpdate) (int, []string)
	ListEventsWithoutEmbedding(ctx context.Context, limit int) ([]model.EmbeddingSource, error)
	ListCategoriesWithoutEmbedding(ctx context.Context, limit int) ([]model.EmbeddingSource, error)
}

// IndexerConfig tunes the backfill job
type IndexerConfig struct {
	BatchSize     int
	Concurrency   int
	RatePerSecond float64 // <= 0 disables rate limiting
}

// EmbeddingIndexer keeps the embeddings the search reads from up to date
type EmbeddingIndexer struct {
	embedder Embedder
	store    EmbeddingStore
	cfg      IndexerConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewEmbeddingIndexer creates a new indexer
func NewEmbeddingIndexer(embedder Embedder, store EmbeddingStore, cfg IndexerConfig, logger *zap.Logger) *EmbeddingIndexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmbeddingIndexer{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Concurrency),
		logger:   logger,
	}
}

// HandleWebhook embeds the row named by a database change notification.
// Deletes are acknowledged and skipped.
func (ix *EmbeddingIndexer) HandleWebhook(ctx context.Context, payload *model.WebhookPayload) (*model.WebhookResponse, error) {
	resp := &model.WebhookResponse{ID: payload.Record.ID, Table: payload.Table}

	if strings.EqualFold(payload.Type, model.WebhookDelete) {
		resp.Success = true
		resp.Skipped = true
		return resp, nil
	}

	text, err := ix.webhookText(ctx, payload)
	if err != nil {
		return nil, err
	}

	ix.logger.Debug("Embedding row",
		zap.String("table", payload.Table),
		zap.Stringer("id", payload.Record.ID))

	embedding, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		metrics.EmbeddingsIndexedTotal.WithLabelValues(payload.Table, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingGenerationFailed, err)
	}

	if err := ix.store.UpdateEmbedding(ctx, payload.Table, payload.Record.ID, embedding); err != nil {
		metrics.EmbeddingsIndexedTotal.WithLabelValues(payload.Table, "error").Inc()
		return nil, fmt.Errorf("store embedding: %w", err)
	}

	metrics.EmbeddingsIndexedTotal.WithLabelValues(payload.Table, "success").Inc()
	ix.logger.Info("Updated embedding",
		zap.String("table", payload.Table),
		zap.Stringer("id", payload.Record.ID),
		zap.Int("dimensions", len(embedding)))

	resp.Success = true
	resp.EmbeddingDimensions = len(embedding)
	return resp, nil
}

// webhookText builds the text to embed: the category name for categories,
// the category name plus notes for events.
func (ix *EmbeddingIndexer) webhookText(ctx context.Context, payload *model.WebhookPayload) (string, error) {
	record := payload.Record
	if record.ID == uuid.Nil {
		return "", fmt.Errorf("%w: record id is required", ErrInvalidWebhook)
	}

	switch payload.Table {
	case model.TableHealthCategories:
		if record.Name == nil || strings.TrimSpace(*record.Name) == "" {
			return "", fmt.Errorf("%w: category record has no name", ErrInvalidWebhook)
		}
		return *record.Name, nil

	case model.TableHealthEvents:
		if record.CategoryID == nil {
			return "", fmt.Errorf("%w: event record has no category_id", ErrInvalidWebhook)
		}
		name, err := ix.store.GetCategoryName(ctx, *record.CategoryID)
		if err != nil {
			return "", fmt.Errorf("fetch category: %w", err)
		}
		return model.EventText(name, record.Notes), nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, payload.Table)
	}
}

// Backfill embeds every category and event that has no embedding yet.
// Rows that fail to embed are reported and left for the next run.
func (ix *EmbeddingIndexer) Backfill(ctx context.Context) (*model.BackfillReport, error) {
	report := &model.BackfillReport{}

	tables := []struct {
		name string
		list func(context.Context, int) ([]model.EmbeddingSource, error)
	}{
		{model.TableHealthCategories, ix.store.ListCategoriesWithoutEmbedding},
		{model.TableHealthEvents, ix.store.ListEventsWithoutEmbedding},
	}

	for _, table := range tables {
		failed := map[uuid.UUID]bool{}
		for {
			// failed rows stay unembedded, so list past them
			sources, err := table.list(ctx, ix.cfg.BatchSize+len(failed))
			if err != nil {
				return report, fmt.Errorf("list %s: %w", table.name, err)
			}

			pending := sources[:0]
			for _, src := range sources {
				if !failed[src.ID] {
					pending = append(pending, src)
				}
			}
			if len(pending) == 0 {
				break
			}

			failedBefore := len(failed)
			updated, err := ix.backfillBatch(ctx, table.name, pending, failed, report)
			if err != nil {
				return report, err
			}
			// a batch that made no progress would be listed again forever
			if updated == 0 && len(failed) == failedBefore {
				break
			}
		}
	}

	ix.logger.Info("Embedding backfill finished",
		zap.Int("processed", report.Processed),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (ix *EmbeddingIndexer) backfillBatch(
	ctx context.Context,
	table string,
	sources []model.EmbeddingSource,
	failed map[uuid.UUID]bool,
	report *model.BackfillReport,
) (int, error) {
	var mu sync.Mutex
	updates := make([]model.EmbeddingUpdate, 0, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)

	for _, src := range sources {
		g.Go(func() error {
			if err := ix.limiter.Wait(gctx); err != nil {
				return err
			}

			embedding, err := ix.embedder.Embed(gctx, src.Text)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[src.ID] = true
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", table, src.ID, err))
				metrics.EmbeddingsIndexedTotal.WithLabelValues(table, "error").Inc()
				return nil
			}
			updates = append(updates, model.EmbeddingUpdate{ID: src.ID, Embedding: embedding})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("backfill %s: %w", table, err)
	}
	if len(updates) == 0 {
		return 0, nil
	}

	success, errs := ix.store.BatchUpdateEmbeddings(ctx, table, updates)
	report.Updated += success
	if len(errs) > 0 {
		report.Failed += len(updates) - success
		report.Errors = append(report.Errors, errs...)
		for _, u := range updates {
			failed[u.ID] = true
		}
	}
	metrics.EmbeddingsIndexedTotal.WithLabelValues(table, "success").Add(float64(success))

	ix.logger.Debug("Backfilled batch",
		zap.String("table", table),
		zap.Int("embedded", len(updates)),
		zap.Int("stored", success))

	return success, nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/metrics"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSearcher runs similarity queries over stored health event embeddings.
// Results must be ordered by descending similarity and include only rows at or
// above threshold.
type EventSearcher interface {
	SearchSimilarEvents(
		ctx context.Context,
		embedding []float32,
		petID *uuid.UUID,
		threshold float64,
		limit int,
	) ([]model.SearchResult, error)
}

// SearchLogger records searches for later analysis
type SearchLogger interface {
	LogSearch(ctx context.Context, entry model.SearchLogEntry) error
}

// Search defaults
const (
	DefaultMatchThreshold = 0.65
	DefaultMatchCount     = 20
	DefaultMaxMatchCount  = 100

	searchLogTimeout = 5 * time.Second
)

// SearchServiceConfig wires the collaborators of a SearchService
type SearchServiceConfig struct {
	Embedder  Embedder
	Events    EventSearcher
	SearchLog SearchLogger  // optional
	Shaper    *ResultShaper // optional, defaults to similarity-order shaping

	MatchThreshold float64
	MatchCount     int
	MaxMatchCount  int

	Logger *zap.Logger
}

// SearchService answers natural-language searches over a pet's health journal
type SearchService struct {
	embedder  Embedder
	events    EventSearcher
	searchLog SearchLogger
	shaper    *ResultShaper

	matchThreshold float64
	matchCount     int
	maxMatchCount  int

	logger *zap.Logger
}

// NewSearchService creates a new search service
func NewSearchService(cfg SearchServiceConfig) *SearchService {
	s := &SearchService{
		embedder:       cfg.Embedder,
		events:         cfg.Events,
		searchLog:      cfg.SearchLog,
		shaper:         cfg.Shaper,
		matchThreshold: cfg.MatchThreshold,
		matchCount:     cfg.MatchCount,
		maxMatchCount:  cfg.MaxMatchCount,
		logger:         cfg.Logger,
	}
	if s.shaper == nil {
		s.shaper = NewResultShaper(false)
	}
	if s.matchThreshold <= 0 {
		s.matchThreshold = DefaultMatchThreshold
	}
	if s.matchCount <= 0 {
		s.matchCount = DefaultMatchCount
	}
	if s.maxMatchCount < s.matchCount {
		s.maxMatchCount = max(DefaultMaxMatchCount, s.matchCount)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Search parses the query, embeds it, runs the similarity search and shapes the
// results by intent. Embedding failures are returned wrapped in
// ErrEmbeddingGenerationFailed and store failures in ErrSearchQueryFailed;
// neither is retried.
func (s *SearchService) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResponse, error) {
	startTime := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		metrics.SearchRequestsTotal.WithLabelValues(model.IntentAll.String(), "empty").Inc()
		return nil, ErrEmptyQuery
	}

	threshold, count, err := s.options(req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(model.IntentAll.String(), "invalid").Inc()
		return nil, err
	}

	parsed := ParseQuery(req.Query)

	results, err := s.search(ctx, parsed, req.PetID, threshold, count)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(parsed.Intent.String(), "error").Inc()
		s.logger.Warn("Search failed",
			zap.String("query", req.Query),
			zap.Stringer("intent", parsed.Intent),
			zap.Error(err))
		return nil, err
	}

	took := time.Since(startTime).Milliseconds()
	metrics.SearchRequestsTotal.WithLabelValues(parsed.Intent.String(), "success").Inc()
	metrics.SearchResults.WithLabelValues(parsed.Intent.String()).Observe(float64(len(results)))

	s.logger.Debug("Search completed",
		zap.String("query", req.Query),
		zap.String("cleaned_query", parsed.CleanedQuery),
		zap.Stringer("intent", parsed.Intent),
		zap.Int("results", len(results)),
		zap.Int64("took_ms", took))

	s.recordSearch(req, parsed, results, took)

	return &model.SearchResponse{
		Results:       results,
		Total:         len(results),
		Intent:        parsed.Intent,
		OriginalQuery: parsed.OriginalQuery,
		CleanedQuery:  parsed.CleanedQuery,
		Took:          took,
	}, nil
}

// search is the two-step pipeline: embed, then query the store. The second
// call needs the first call's output, so nothing runs in parallel.
func (s *SearchService) search(
	ctx context.Context,
	parsed model.ParsedQuery,
	petID *uuid.UUID,
	threshold float64,
	count int,
) ([]model.SearchResult, error) {
	embedding, err := s.embedder.Embed(ctx, parsed.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingGenerationFailed, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingGenerationFailed)
	}

	results, err := s.events.SearchSimilarEvents(ctx, embedding, petID, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchQueryFailed, err)
	}

	results = applyThreshold(results, threshold, count)
	return s.shaper.Shape(parsed.Intent, results), nil
}

// options resolves per-request threshold and count against the service defaults
func (s *SearchService) options(req *model.SearchRequest) (float64, int, error) {
	threshold := s.matchThreshold
	if req.MatchThreshold != nil {
		threshold = *req.MatchThreshold
		if threshold < 0 || threshold > 1 {
			return 0, 0, fmt.Errorf("%w: match_threshold must be within [0, 1], got %g", ErrInvalidArgument, threshold)
		}
	}

	count := s.matchCount
	if req.MatchCount != nil {
		count = *req.MatchCount
		if count <= 0 {
			return 0, 0, fmt.Errorf("%w: match_count must be positive, got %d", ErrInvalidArgument, count)
		}
		count = min(count, s.maxMatchCount)
	}

	return threshold, count, nil
}

// recordSearch writes the search log in the background; failures are only logged.
func (s *SearchService) recordSearch(req *model.SearchRequest, parsed model.ParsedQuery, results []model.SearchResult, took int64) {
	if s.searchLog == nil {
		return
	}

	entry := model.SearchLogEntry{
		Query:          req.Query,
		Intent:         parsed.Intent,
		CleanedQuery:   parsed.CleanedQuery,
		PetID:          req.PetID,
		ResultCount:    len(results),
		EventIDs:       make([]uuid.UUID, len(results)),
		ResponseTimeMs: took,
	}
	for i, r := range results {
		entry.EventIDs[i] = r.EventID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), searchLogTimeout)
		defer cancel()
		if err := s.searchLog.LogSearch(ctx, entry); err != nil {
			s.logger.Warn("Failed to log search", zap.Error(err))
		}
	}()
}

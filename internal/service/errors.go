package service

import "errors"

var (
	// ErrEmptyQuery is returned for blank search queries; nothing is embedded or searched.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrInvalidArgument is returned for out-of-range search options.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmbeddingGenerationFailed wraps failures of the embedding provider.
	ErrEmbeddingGenerationFailed = errors.New("embedding generation failed")

	// ErrSearchQueryFailed wraps failures of the similarity store.
	ErrSearchQueryFailed = errors.New("search query failed")

	// ErrUnknownTable is returned for webhooks about tables without embeddings.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidWebhook is returned when a webhook record lacks the fields needed to embed it.
	ErrInvalidWebhook = errors.New("invalid webhook payload")
)

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bilozorDev/orests-journal-ios-app/internal/logger"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"
	"github.com/bilozorDev/orests-journal-ios-app/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const emptyQueryMessage = "Query parameter is required and must be a non-empty string"

// Indexer writes embeddings for changed rows
type Indexer interface {
	HandleWebhook(ctx context.Context, payload *model.WebhookPayload) (*model.WebhookResponse, error)
	Backfill(ctx context.Context) (*model.BackfillReport, error)
}

// EmbeddingHandler handles embedding-related HTTP requests
type EmbeddingHandler struct {
	embedder service.Embedder
	indexer  Indexer
}

// NewEmbeddingHandler creates a new embedding handler
func NewEmbeddingHandler(embedder service.Embedder, indexer Indexer) *EmbeddingHandler {
	return &EmbeddingHandler{
		embedder: embedder,
		indexer:  indexer,
	}
}

// EmbedQuery handles POST /api/v1/embeddings/query
func (h *EmbeddingHandler) EmbedQuery(c *gin.Context) {
	var req model.EmbedQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, model.EmbedQueryResponse{Error: emptyQueryMessage})
		return
	}

	embedding, err := h.embedder.Embed(c.Request.Context(), req.Query)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Query embedding failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.EmbedQueryResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.EmbedQueryResponse{
		Success:    true,
		Query:      req.Query,
		Embedding:  embedding,
		Dimensions: len(embedding),
	})
}

// Webhook handles POST /api/v1/webhooks/health-embedding
func (h *EmbeddingHandler) Webhook(c *gin.Context) {
	var payload model.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, model.WebhookResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	resp, err := h.indexer.HandleWebhook(c.Request.Context(), &payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnknownTable) || errors.Is(err, service.ErrInvalidWebhook) {
			status = http.StatusBadRequest
		} else {
			logger.FromContext(c.Request.Context()).Error("Embedding webhook failed",
				zap.String("table", payload.Table),
				zap.Stringer("id", payload.Record.ID),
				zap.Error(err))
		}
		c.JSON(status, model.WebhookResponse{
			ID:    payload.Record.ID,
			Table: payload.Table,
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Backfill handles POST /api/v1/embeddings/backfill
func (h *EmbeddingHandler) Backfill(c *gin.Context) {
	report, err := h.indexer.Backfill(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Backfill failed: " + err.Error(), "report": report})
		return
	}

	if report.Failed > 0 {
		c.JSON(http.StatusPartialContent, report)
	} else {
		c.JSON(http.StatusOK, report)
	}
}

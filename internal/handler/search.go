package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bilozorDev/orests-journal-ios-app/internal/logger"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"
	"github.com/bilozorDev/orests-journal-ios-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Searcher answers natural-language journal searches
type Searcher interface {
	Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResponse, error)
}

// EventReader loads a single health event
type EventReader interface {
	GetEventByID(ctx context.Context, id uuid.UUID) (*model.SearchResult, error)
}

// SearchHandler handles search-related HTTP requests
type SearchHandler struct {
	searcher Searcher
	events   EventReader
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher Searcher, events EventReader) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		events:   events,
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	response, err := h.searcher.Search(c.Request.Context(), &req)
	if err != nil {
		status := searchErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("Search failed",
				zap.String("query", req.Query),
				zap.Error(err))
		}
		c.JSON(status, gin.H{"error": "Search failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// SearchStream handles POST /api/v1/search/stream - SSE streaming search.
// Emits start, intent, results and done events; an error event replaces the
// last two on failure.
func (h *SearchHandler) SearchStream(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	sendSSE(c, "start", map[string]any{"query": req.Query})
	flusher.Flush()

	// parsing is pure, so the client can show the detected intent before the
	// embedding round trip finishes
	parsed := service.ParseQuery(req.Query)
	sendSSE(c, "intent", map[string]any{
		"intent":        parsed.Intent,
		"cleaned_query": parsed.CleanedQuery,
	})
	flusher.Flush()

	response, err := h.searcher.Search(c.Request.Context(), &req)
	if err != nil {
		sendSSE(c, "error", map[string]any{"error": err.Error(), "status": searchErrorStatus(err)})
		flusher.Flush()
		return
	}

	sendSSE(c, "results", response)
	flusher.Flush()

	sendSSE(c, "done", nil)
	flusher.Flush()
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data == nil {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
		return
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, jsonData)
}

// GetEvent handles GET /api/v1/events/:id
func (h *SearchHandler) GetEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	event, err := h.events.GetEventByID(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get event: " + err.Error()})
		return
	}

	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	c.JSON(http.StatusOK, event)
}

func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyQuery), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmbeddingGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

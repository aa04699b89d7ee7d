package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/config"
	"github.com/bilozorDev/orests-journal-ios-app/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Embedder turns text into a unit-length embedding vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the embedder selected by cfg.Provider
func NewEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		logger.Info("Using OpenAI-compatible embedding provider",
			zap.String("api_base", cfg.APIBase),
			zap.String("model", cfg.Model),
			zap.Int("dimensions", cfg.Dimensions))
		return NewOpenAIEmbedder(cfg, httpClient, logger), nil
	case config.ProviderEdge:
		logger.Info("Using edge function embedding provider",
			zap.String("function_url", cfg.FunctionURL),
			zap.Int("dimensions", cfg.Dimensions))
		return NewEdgeFunctionEmbedder(cfg, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding provider
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, httpClient *http.Client, logger *zap.Logger) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		observeEmbedding(config.ProviderOpenAI, string(e.model), start, "api_error")
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		observeEmbedding(config.ProviderOpenAI, string(e.model), start, "empty_response")
		return nil, errors.New("empty embedding response")
	}

	vec, err := checkEmbedding(resp.Data[0].Embedding, e.dimensions)
	if err != nil {
		observeEmbedding(config.ProviderOpenAI, string(e.model), start, "malformed")
		return nil, err
	}

	observeEmbedding(config.ProviderOpenAI, string(e.model), start, "")
	e.logger.Debug("Generated embedding",
		zap.Int("dimensions", len(vec)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return vec, nil
}

// parseAPIError extracts a human-readable error from the API response
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("embedding request failed: %w", err)
}

// extractDetail extracts the "detail" or "error" field from a JSON error body
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error
}

// checkEmbedding rejects empty or wrongly sized vectors and scales the rest to
// unit length so inner product equals cosine similarity.
func checkEmbedding(vec []float32, dimensions int) ([]float32, error) {
	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}
	if dimensions > 0 && len(vec) != dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), dimensions)
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, errors.New("embedding has no usable magnitude")
	}
	if math.Abs(norm-1) < 1e-4 {
		return vec, nil
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

func observeEmbedding(provider, model string, start time.Time, errorType string) {
	if errorType != "" {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, model, errorType).Inc()
		return
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

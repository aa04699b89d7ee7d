package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/config"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"go.uber.org/zap"
)

// edgeModel labels metrics for the hosted function, which always runs gte-small
const edgeModel = "gte-small"

// EdgeFunctionEmbedder calls the hosted embed-search-query function
type EdgeFunctionEmbedder struct {
	url        string
	apiKey     string
	dimensions int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEdgeFunctionEmbedder creates an embedder backed by the hosted function at cfg.FunctionURL
func NewEdgeFunctionEmbedder(cfg config.EmbeddingConfig, httpClient *http.Client, logger *zap.Logger) *EdgeFunctionEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &EdgeFunctionEmbedder{
		url:        cfg.FunctionURL,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Embed implements Embedder
func (e *EdgeFunctionEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	vec, errorType, err := e.call(ctx, text)
	if err != nil {
		observeEmbedding(config.ProviderEdge, edgeModel, start, errorType)
		return nil, err
	}

	vec, err = checkEmbedding(vec, e.dimensions)
	if err != nil {
		observeEmbedding(config.ProviderEdge, edgeModel, start, "malformed")
		return nil, err
	}

	observeEmbedding(config.ProviderEdge, edgeModel, start, "")
	e.logger.Debug("Generated embedding", zap.Int("dimensions", len(vec)))
	return vec, nil
}

func (e *EdgeFunctionEmbedder) call(ctx context.Context, text string) ([]float32, string, error) {
	reqBody, err := json.Marshal(model.EmbedQueryRequest{Query: text})
	if err != nil {
		return nil, "request", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, "request", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
		httpReq.Header.Set("apikey", e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, "transport", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "transport", fmt.Errorf("failed to read response: %w", err)
	}

	var result model.EmbedQueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, "api_error", fmt.Errorf("embedding function failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, "malformed", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		msg := result.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, "api_error", fmt.Errorf("embedding function failed with status %d: %s", resp.StatusCode, msg)
	}

	return result.Embedding, "", nil
}

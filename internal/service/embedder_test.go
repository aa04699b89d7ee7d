package service

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/config"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newOpenAIServer(t *testing.T, vec []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"asthma attack"}, req.Input)
		assert.Equal(t, "gte-small", req.Model)

		resp := openaiEmbeddingResponse{Object: "list", Model: req.Model}
		if vec != nil {
			resp.Data = append(resp.Data, struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Object: "embedding", Embedding: vec})
		}
		resp.Usage.PromptTokens = 3
		resp.Usage.TotalTokens = 3

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func openAIConfig(baseURL string, dims int) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Provider:   config.ProviderOpenAI,
		APIKey:     "test-key",
		APIBase:    baseURL,
		Model:      "gte-small",
		Dimensions: dims,
		Timeout:    5 * time.Second,
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := newOpenAIServer(t, []float32{0.6, 0.8, 0})
	defer server.Close()

	emb := NewOpenAIEmbedder(openAIConfig(server.URL, 3), nil, zap.NewNop())

	vec, err := emb.Embed(context.Background(), "asthma attack")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8, 0}, vec)
}

func TestOpenAIEmbedder_NormalizesVector(t *testing.T) {
	server := newOpenAIServer(t, []float32{3, 4})
	defer server.Close()

	emb := NewOpenAIEmbedder(openAIConfig(server.URL, 0), nil, zap.NewNop())

	vec, err := emb.Embed(context.Background(), "asthma attack")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	server := newOpenAIServer(t, []float32{1, 0})
	defer server.Close()

	emb := NewOpenAIEmbedder(openAIConfig(server.URL, 384), nil, zap.NewNop())

	_, err := emb.Embed(context.Background(), "asthma attack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 384")
}

func TestOpenAIEmbedder_EmptyResponse(t *testing.T) {
	server := newOpenAIServer(t, nil)
	defer server.Close()

	emb := NewOpenAIEmbedder(openAIConfig(server.URL, 0), nil, zap.NewNop())

	_, err := emb.Embed(context.Background(), "asthma attack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty embedding response")
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder(openAIConfig(server.URL, 0), nil, zap.NewNop())

	_, err := emb.Embed(context.Background(), "asthma attack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestEdgeFunctionEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var req model.EmbedQueryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		json.NewEncoder(w).Encode(model.EmbedQueryResponse{
			Success:    true,
			Query:      req.Query,
			Embedding:  []float32{0, 1, 0, 0},
			Dimensions: 4,
		})
	}))
	defer server.Close()

	emb := NewEdgeFunctionEmbedder(config.EmbeddingConfig{
		APIKey:      "anon-key",
		FunctionURL: server.URL,
		Dimensions:  4,
		Timeout:     5 * time.Second,
	}, nil, zap.NewNop())

	vec, err := emb.Embed(context.Background(), "vomiting")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0}, vec)
}

func TestEdgeFunctionEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "function reports failure",
			status:  http.StatusBadRequest,
			body:    `{"success":false,"error":"Query parameter is required and must be a non-empty string"}`,
			wantErr: "Query parameter is required",
		},
		{
			name:    "success flag false with 200",
			status:  http.StatusOK,
			body:    `{"success":false,"error":"model not loaded"}`,
			wantErr: "model not loaded",
		},
		{
			name:    "non-json gateway error",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: "status 502",
		},
		{
			name:    "empty embedding",
			status:  http.StatusOK,
			body:    `{"success":true,"embedding":[]}`,
			wantErr: "empty embedding",
		},
		{
			name:    "zero vector",
			status:  http.StatusOK,
			body:    `{"success":true,"embedding":[0,0,0]}`,
			wantErr: "magnitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			emb := NewEdgeFunctionEmbedder(config.EmbeddingConfig{FunctionURL: server.URL}, server.Client(), zap.NewNop())

			_, err := emb.Embed(context.Background(), "vomiting")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	emb, err := NewEmbedder(config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "gte-small"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, emb)

	emb, err = NewEmbedder(config.EmbeddingConfig{Provider: config.ProviderEdge, FunctionURL: "http://localhost"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &EdgeFunctionEmbedder{}, emb)

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "cohere"}, zap.NewNop())
	assert.Error(t, err)
}

func TestCheckEmbedding(t *testing.T) {
	vec, err := checkEmbedding([]float32{0, 0, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, vec)

	_, err = checkEmbedding([]float32{float32(math.NaN()), 1}, 0)
	assert.Error(t, err)

	_, err = checkEmbedding(nil, 0)
	assert.Error(t, err)
}

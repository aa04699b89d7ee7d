package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.65, cfg.Search.MatchThreshold)
	assert.Equal(t, 20, cfg.Search.MatchCount)
	assert.Equal(t, 100, cfg.Search.MaxMatchCount)
	assert.False(t, cfg.Search.ChronologicalIntent)
	assert.True(t, cfg.Search.LogEnabled)
	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEARCH_MATCH_THRESHOLD", "0.8")
	t.Setenv("SEARCH_MATCH_COUNT", "5")
	t.Setenv("SEARCH_CHRONOLOGICAL_INTENT", "true")
	t.Setenv("EMBEDDING_PROVIDER", "EDGE")
	t.Setenv("EMBEDDING_FUNCTION_URL", "http://localhost:54321/functions/v1/embed-search-query")
	t.Setenv("EMBEDDING_TIMEOUT", "5s")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Search.MatchThreshold)
	assert.Equal(t, 5, cfg.Search.MatchCount)
	assert.True(t, cfg.Search.ChronologicalIntent)
	assert.Equal(t, ProviderEdge, cfg.Embedding.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_InvalidValuesFallBackWithWarning(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEARCH_MATCH_COUNT", "twenty")
	t.Setenv("SEARCH_LOG_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Search.MatchCount)
	assert.True(t, cfg.Search.LogEnabled)
	assert.Len(t, cfg.Warnings, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "threshold above one",
			env:     map[string]string{"SEARCH_MATCH_THRESHOLD": "1.5"},
			wantErr: "SEARCH_MATCH_THRESHOLD",
		},
		{
			name:    "non-positive count",
			env:     map[string]string{"SEARCH_MATCH_COUNT": "0"},
			wantErr: "SEARCH_MATCH_COUNT",
		},
		{
			name:    "max below default count",
			env:     map[string]string{"SEARCH_MATCH_COUNT": "50", "SEARCH_MAX_MATCH_COUNT": "10"},
			wantErr: "SEARCH_MAX_MATCH_COUNT",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"EMBEDDING_PROVIDER": "cohere"},
			wantErr: "EMBEDDING_PROVIDER",
		},
		{
			name:    "edge provider without url",
			env:     map[string]string{"EMBEDDING_PROVIDER": "edge"},
			wantErr: "EMBEDDING_FUNCTION_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetPostgreSQLDSN(t *testing.T) {
	cfg := &Config{PostgreSQL: PostgreSQLConfig{
		Host: "db", Port: 5433, User: "journal", Password: "secret", Database: "journal", SSLMode: "require",
	}}
	assert.Equal(t, "host=db port=5433 user=journal password=secret dbname=journal sslmode=require", cfg.GetPostgreSQLDSN())

	cfg.PostgreSQL.DSN = "postgres://u:p@h/db"
	assert.Equal(t, "postgres://u:p@h/db", cfg.GetPostgreSQLDSN())
}

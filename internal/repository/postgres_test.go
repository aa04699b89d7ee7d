package repository

import (
	"testing"

	"github.com/bilozorDev/orests-journal-ios-app/internal/model"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSimilarityQuery_AllPets(t *testing.T) {
	query, args := buildSimilarityQuery([]float32{0.6, 0.8}, nil, 0.65, 20)

	require.Len(t, args, 3)
	vec, ok := args[0].(pgvector.Vector)
	require.True(t, ok)
	assert.Equal(t, []float32{0.6, 0.8}, vec.Slice())
	assert.Equal(t, 0.65, args[1])
	assert.Equal(t, 20, args[2])

	assert.Contains(t, query, "(e.embedding <#> $1::vector) * -1 >= $2")
	assert.Contains(t, query, "ORDER BY e.embedding <#> $1::vector")
	assert.Contains(t, query, "LIMIT $3")
	assert.NotContains(t, query, "c.pet_id = $")
}

func TestBuildSimilarityQuery_ScopedToPet(t *testing.T) {
	petID := uuid.MustParse("0b6f5c1e-7d0a-4a43-9e33-2b5b7d0c9a11")

	query, args := buildSimilarityQuery([]float32{1}, &petID, 0.7, 5)

	require.Len(t, args, 4)
	assert.Equal(t, petID, args[2])
	assert.Equal(t, 5, args[3])
	assert.Contains(t, query, "c.pet_id = $3")
	assert.Contains(t, query, "LIMIT $4")
}

func TestEmbeddingTable(t *testing.T) {
	for _, table := range []string{model.TableHealthEvents, model.TableHealthCategories} {
		got, err := embeddingTable(table)
		require.NoError(t, err)
		assert.Equal(t, table, got)
	}

	_, err := embeddingTable("pets; DROP TABLE pets")
	assert.Error(t, err)
}

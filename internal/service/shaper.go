package service

import (
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"
)

// ResultShaper turns a similarity-ranked result list into the list a search
// intent asks for.
type ResultShaper struct {
	chronological bool
}

// NewResultShaper creates a shaper. With chronological set, first/last
// searches pick the earliest/latest matching event by occurred_at instead of
// the most similar one.
func NewResultShaper(chronological bool) *ResultShaper {
	return &ResultShaper{chronological: chronological}
}

// Shape applies the intent to results, which must be ordered by descending
// similarity. The input slice is not modified.
func (r *ResultShaper) Shape(intent model.Intent, results []model.SearchResult) []model.SearchResult {
	if !intent.Singular() || len(results) <= 1 {
		return results
	}

	if !r.chronological {
		return results[:1:1]
	}

	pick := 0
	for i := 1; i < len(results); i++ {
		// strict comparison keeps the more similar event on timestamp ties
		switch intent {
		case model.IntentFirst:
			if results[i].OccurredAt.Before(results[pick].OccurredAt) {
				pick = i
			}
		case model.IntentLast:
			if results[i].OccurredAt.After(results[pick].OccurredAt) {
				pick = i
			}
		}
	}
	return []model.SearchResult{results[pick]}
}

// applyThreshold drops results below threshold and caps the list at limit.
func applyThreshold(results []model.SearchResult, threshold float64, limit int) []model.SearchResult {
	filtered := make([]model.SearchResult, 0, len(results))
	for _, res := range results {
		if res.Similarity >= threshold {
			filtered = append(filtered, res)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

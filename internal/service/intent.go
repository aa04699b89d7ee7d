package service

import (
	"strings"

	"github.com/bilozorDev/orests-journal-ios-app/internal/model"
)

// Keywords are matched as substrings of the lowercased query, in declared
// order. The first list wins when a query contains words from both.
var (
	firstKeywords = []string{
		"first", "earliest", "initial", "when was first", "when did first",
		"first time", "starting", "beginning",
	}

	lastKeywords = []string{
		"last", "latest", "most recent", "recent", "when was last",
		"when did last", "last time",
	}
)

// fillerWords carry no topical signal and are dropped from cleaned queries
var fillerWords = map[string]struct{}{
	"when": {},
	"was":  {},
	"did":  {},
	"the":  {},
	"a":    {},
	"an":   {},
}

// ParseQuery classifies the temporal intent of a free-text query and strips the
// intent keyword and filler words from it. It accepts any input, including "".
func ParseQuery(query string) model.ParsedQuery {
	normalized := strings.ToLower(strings.TrimSpace(query))

	if keyword, ok := matchKeyword(normalized, firstKeywords); ok {
		return model.ParsedQuery{
			OriginalQuery: query,
			Intent:        model.IntentFirst,
			CleanedQuery:  CleanQuery(strings.Replace(normalized, keyword, "", 1)),
		}
	}

	if keyword, ok := matchKeyword(normalized, lastKeywords); ok {
		return model.ParsedQuery{
			OriginalQuery: query,
			Intent:        model.IntentLast,
			CleanedQuery:  CleanQuery(strings.Replace(normalized, keyword, "", 1)),
		}
	}

	return model.ParsedQuery{
		OriginalQuery: query,
		Intent:        model.IntentAll,
		CleanedQuery:  query,
	}
}

// CleanQuery drops standalone filler words and collapses whitespace.
// CleanQuery(CleanQuery(s)) == CleanQuery(s).
func CleanQuery(text string) string {
	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, token := range tokens {
		if _, filler := fillerWords[token]; filler {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

func matchKeyword(text string, keywords []string) (string, bool) {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

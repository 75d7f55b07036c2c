package stubserver

import (
	"sort"
	"strings"

	"github.com/chatportal/conversation-core/internal/model"
)

const maxSearchResults = 5

// rankMessages scores every stored message against the query with a
// token-overlap similarity in [0, 1] and returns the top matches, descending.
// Deterministic stand-in for the real embedding similarity; only the output
// contract matters to the client.
func rankMessages(corpus []model.Message, query string) []model.SearchResult {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	results := make([]model.SearchResult, 0, len(corpus))
	for _, msg := range corpus {
		score := overlap(queryTokens, tokenize(msg.Content))
		if score == 0 {
			continue
		}
		results = append(results, model.SearchResult{
			Content:    msg.Content,
			Similarity: score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,!?;:\"'()")
		if field != "" {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

// overlap is the Jaccard index of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

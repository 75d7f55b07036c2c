package model

import (
	"time"
)

// SearchResult is one semantic search hit. Similarity is bounded to [0, 1],
// where 1.0 is an exact semantic match; it is used for ranking and display
// only, never for exact-match logic.
type SearchResult struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Valid reports whether the result carries a well-formed payload. Malformed
// entries are rejected at the transport boundary rather than propagated.
func (r SearchResult) Valid() bool {
	return r.Content != "" && r.Similarity >= 0 && r.Similarity <= 1
}

// SearchRequest is the request body for a semantic search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the response body for a semantic search, ranked
// descending by similarity.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// DashboardResponse is the raw dashboard payload as returned by the service.
// Numeric fields are pointers so an omitted field stays distinguishable from
// a real zero.
type DashboardResponse struct {
	Total           *int     `json:"total"`
	Active          *int     `json:"active"`
	Ended           *int     `json:"ended,omitempty"`
	AvgDurationMins *float64 `json:"avg_duration_mins"`
	UsingLocalLLM   bool     `json:"using_local_llm"`
}

// DashboardSnapshot is a read-only projection of service-wide analytics,
// recomputed on every query. Nil fields mean the service omitted the value;
// they render as "unknown" rather than a silent zero.
type DashboardSnapshot struct {
	TotalConversations  *int
	ActiveConversations *int
	AvgResponseTime     *time.Duration
	UsingLocalLLM       bool
}

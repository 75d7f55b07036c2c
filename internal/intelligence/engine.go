// Package intelligence issues semantic search queries over historical
// conversations and normalizes how their results are applied.
package intelligence

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/pkg/logger"
)

var (
	// ErrSuperseded signals that a newer query was issued while this one was
	// outstanding; its response was discarded.
	ErrSuperseded = errors.New("search superseded by a newer query")

	// ErrSearchInFlight signals an identical query already outstanding; no
	// duplicate network call is made.
	ErrSearchInFlight = errors.New("identical search already in flight")
)

// Searcher is the slice of the chat service surface the engine uses.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Engine runs semantic searches. Stateless with respect to conversations; it
// only tracks which query is most recent so stale responses are never
// applied to observable results.
type Engine struct {
	searcher Searcher
	logger   *logger.Logger

	mu       sync.Mutex
	seq      uint64
	inFlight string
	results  []model.SearchResult
}

// NewEngine creates a search engine over the given transport.
func NewEngine(s Searcher, log *logger.Logger) *Engine {
	return &Engine{
		searcher: s,
		logger:   log,
	}
}

// Run executes one search. Empty or whitespace-only queries short-circuit to
// an empty result set without a network call. Results come back in
// service-provided rank order; only the response matching the most recent
// query is retained as the engine's observable result set.
func (e *Engine) Run(ctx context.Context, query string) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	e.mu.Lock()
	if e.inFlight == query {
		e.mu.Unlock()
		return nil, ErrSearchInFlight
	}
	e.seq++
	seq := e.seq
	e.inFlight = query
	e.mu.Unlock()

	results, err := e.searcher.Search(ctx, query)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq != seq {
		// A newer query superseded this one while it was outstanding.
		e.logger.Debug("discarding stale search response",
			zap.String("query", query),
		)
		return nil, ErrSuperseded
	}
	e.inFlight = ""

	if err != nil {
		return nil, err
	}

	e.results = results
	return results, nil
}

// Results returns a copy of the most recently applied result set.
func (e *Engine) Results() []model.SearchResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.SearchResult, len(e.results))
	copy(out, e.results)
	return out
}

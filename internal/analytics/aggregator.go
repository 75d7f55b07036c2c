// Package analytics shapes service-wide dashboard summaries. Every refresh
// re-fetches; nothing is cached.
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/pkg/logger"
)

// Fetcher is the slice of the chat service surface the aggregator uses.
type Fetcher interface {
	FetchDashboard(ctx context.Context) (*model.DashboardResponse, error)
}

// Aggregator maps raw dashboard payloads into snapshots. It computes no
// derived values beyond unit conversion for duration presentation.
type Aggregator struct {
	fetcher Fetcher
	logger  *logger.Logger
}

// NewAggregator creates a dashboard aggregator over the given transport.
func NewAggregator(f Fetcher, log *logger.Logger) *Aggregator {
	return &Aggregator{
		fetcher: f,
		logger:  log,
	}
}

// RefreshSnapshot fetches and shapes the current dashboard. Fields the
// service omitted stay nil so they render as unknown rather than a silent
// zero.
func (a *Aggregator) RefreshSnapshot(ctx context.Context) (*model.DashboardSnapshot, error) {
	raw, err := a.fetcher.FetchDashboard(ctx)
	if err != nil {
		return nil, err
	}

	snap := &model.DashboardSnapshot{
		TotalConversations:  raw.Total,
		ActiveConversations: raw.Active,
		UsingLocalLLM:       raw.UsingLocalLLM,
	}

	if raw.AvgDurationMins != nil {
		d := time.Duration(*raw.AvgDurationMins * float64(time.Minute))
		snap.AvgResponseTime = &d
	}

	if raw.Total != nil && raw.Active != nil && *raw.Active > *raw.Total {
		a.logger.Warn("dashboard reports more active than total conversations",
			zap.Int("active", *raw.Active),
			zap.Int("total", *raw.Total),
		)
	}

	return snap, nil
}

// FormatCount renders an optional count, using "unknown" for omitted values.
func FormatCount(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}

// FormatAvgResponse renders the average duration in minutes, matching the
// service's unit, using "unknown" for omitted values.
func FormatAvgResponse(d *time.Duration) string {
	if d == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f mins", d.Minutes())
}

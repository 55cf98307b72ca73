// Package gather downloads historical daily bars into the bar store.
package gather

import (
	"context"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// BarSource fetches daily bars for a batch of symbols.
type BarSource interface {
	DailyBars(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error)
}

package market

import (
	"context"
	"time"
)

// Store is the read-side of the persistent OHLC tables this package
// queries: the cold base table and the two materialized summary views.
// Implementations are read-only from the core's perspective; an external
// ingester owns writes and view refreshes.
type Store interface {
	// QueryBase reads from the cold ohlc_data table.
	QueryBase(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error)

	// QueryTodayView reads from the 24h materialized summary. Returns
	// ErrViewUnavailable if the view is mid-refresh or missing.
	QueryTodayView(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error)

	// QueryRecentView reads from the 7d materialized summary. Returns
	// ErrViewUnavailable if the view is mid-refresh or missing.
	QueryRecentView(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error)

	// LatestBar returns the single freshest bar for a symbol/timeframe,
	// used by the exit loop and the freshness monitor.
	LatestBar(ctx context.Context, symbol string, tf Timeframe) (*OhlcBar, error)
}

// Provider is the external market-data ingestion adapter (websocket/REST
// feed). No package calls it: internal/ingest backfill uses its own
// DataProvider, and day-to-day scanning reads exclusively from Store.
type Provider interface {
	FetchBars(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error)
}

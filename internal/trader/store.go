package trader

import "context"

// Store is the narrow persistence surface PaperTrader needs, defined
// here (not in internal/storage) so this package never imports its own
// infrastructure implementation — storage implements this interface.
type Store interface {
	// LoadOpenPositions reconstructs every unclosed position (a BUY row
	// without a matching SELL) on startup, for crash recovery.
	LoadOpenPositions(ctx context.Context) ([]Position, error)

	// InsertOpen persists the BUY row for a newly opened position.
	InsertOpen(ctx context.Context, pos Position) error

	// InsertClose persists the SELL row linked by TradeGroupID.
	InsertClose(ctx context.Context, pos Position, exit ExitRecord) error
}

package projection

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventSource returns the stock events of one product whose day falls at or before the
// horizon. Events before asOf are returned with negative days and count as backlog.
type EventSource interface {
	ReadEvents(ctx context.Context, product ProductKey, asOf time.Time, horizon int) ([]StockEvent, error)
}

// BalanceSource returns the physical on-hand quantity at the start of asOf.
type BalanceSource interface {
	ReadCurrentBalance(ctx context.Context, product ProductKey, asOf time.Time) (decimal.Decimal, error)
}

// OrderSource resolves order references to their open lines.
// ReadOrderLines returns ErrOrderNotFound for unknown references.
type OrderSource interface {
	ReadOrderLines(ctx context.Context, orderRef string, asOf time.Time) ([]OrderLine, error)
	ListActiveOrderRefs(ctx context.Context) ([]string, error)
}

package projection

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKey identifies a product. The engine treats it as opaque; the store encodes
// product type and id into it.
type ProductKey string

type Verdict string

const (
	VerdictOK       Verdict = "OK"
	VerdictAtRisk   Verdict = "AT_RISK"
	VerdictRuptured Verdict = "RUPTURED"
)

// DayDeltas is the aggregator's output: the opening balance (backlog folded in) and the
// per-day inflow/outflow for days 0..Horizon.
type DayDeltas struct {
	Product        ProductKey
	AsOf           time.Time
	Horizon        int
	InitialBalance decimal.Decimal
	Inflow         []decimal.Decimal
	Outflow        []decimal.Decimal
}

// Deltas nets inflow and outflow per day.
func (d *DayDeltas) Deltas() []decimal.Decimal {
	out := make([]decimal.Decimal, len(d.Inflow))
	for i := range d.Inflow {
		out[i] = d.Inflow[i].Sub(d.Outflow[i])
	}
	return out
}

// CardexDay is one row of the day-by-day ledger view behind a projection.
type CardexDay struct {
	Day     int             `json:"day"`
	Opening decimal.Decimal `json:"opening"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Closing decimal.Decimal `json:"closing"`
}

// DailyProjection is shared between cache readers and must be treated as read-only.
type DailyProjection struct {
	Product          ProductKey        `json:"product"`
	AsOf             time.Time         `json:"as_of"`
	Horizon          int               `json:"horizon"`
	InitialBalance   decimal.Decimal   `json:"initial_balance"`
	Balances         []decimal.Decimal `json:"balances"`
	RuptureDay       *int              `json:"rupture_day"`
	MinBalanceWindow decimal.Decimal   `json:"min_balance_window"`
	Cardex           []CardexDay       `json:"cardex,omitempty"`
}

// BalanceOn returns the running balance at day offset d and whether d is inside the horizon.
func (p *DailyProjection) BalanceOn(d int) (decimal.Decimal, bool) {
	if p == nil || d < 0 || d >= len(p.Balances) {
		return decimal.Zero, false
	}
	return p.Balances[d], true
}

// OrderLine is one order line resolved by the order source. Day is relative to the as-of day.
type OrderLine struct {
	LineRef string          `json:"line_ref"`
	Product ProductKey      `json:"product"`
	Qty     decimal.Decimal `json:"qty"`
	Day     int             `json:"day"`
}

type OrderLineAvailability struct {
	LineRef               string           `json:"line_ref,omitempty"`
	Product               ProductKey       `json:"product"`
	RequestedQty          decimal.Decimal  `json:"requested_qty"`
	RequestedDay          int              `json:"requested_day"`
	Verdict               Verdict          `json:"verdict"`
	ProjectedBalanceOnDay *decimal.Decimal `json:"projected_balance_on_day"`
	Reason                string           `json:"reason,omitempty"`
}

type OrderAvailabilityReport struct {
	OrderRef     string                  `json:"order_ref"`
	PctAvailable float64                 `json:"pct_available"`
	Lines        []OrderLineAvailability `json:"lines"`
	OverallOk    bool                    `json:"overall_ok"`
	Reason       string                  `json:"reason,omitempty"`
}

// HasRupture reports whether any line is RUPTURED.
func (r *OrderAvailabilityReport) HasRupture() bool {
	for _, l := range r.Lines {
		if l.Verdict == VerdictRuptured {
			return true
		}
	}
	return false
}

type BatchStats struct {
	TotalOrders       int     `json:"total_orders"`
	FullyAvailable    int     `json:"fully_available"`
	WithRupture       int     `json:"with_rupture"`
	AvgPctAvailable   float64 `json:"avg_pct_available"`
	ProductsEvaluated int     `json:"products_evaluated"`
	ProductsFailed    int     `json:"products_failed"`
	ElapsedMs         int64   `json:"elapsed_ms"`
}

type BatchReport struct {
	AsOf    time.Time                           `json:"as_of"`
	Reports map[string]*OrderAvailabilityReport `json:"reports"`
	Stats   BatchStats                          `json:"stats"`
}

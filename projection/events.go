package projection

import "github.com/shopspring/decimal"

type EventKind string

const (
	EventKindReceipt             EventKind = "RECEIPT"
	EventKindScheduledProduction EventKind = "SCHEDULED_PRODUCTION"
	EventKindCommittedOutbound   EventKind = "COMMITTED_OUTBOUND"
	EventKindAdjustment          EventKind = "ADJUSTMENT"
)

// StockEvent is a closed set: only the four variants below implement it.
// Day is an offset from the as-of day; negative days are backlog.
type StockEvent interface {
	Kind() EventKind
	EventProduct() ProductKey
	EventDay() int
	// flows returns the non-negative inflow and outflow magnitudes of the event.
	flows() (inflow, outflow decimal.Decimal)
}

type Receipt struct {
	Product ProductKey
	Day     int
	Qty     decimal.Decimal
}

type ScheduledProduction struct {
	Product ProductKey
	Day     int
	Qty     decimal.Decimal
}

type CommittedOutbound struct {
	Product  ProductKey
	Day      int
	Qty      decimal.Decimal
	OrderRef string
}

type Adjustment struct {
	Product   ProductKey
	Day       int
	QtySigned decimal.Decimal
}

func (e Receipt) Kind() EventKind          { return EventKindReceipt }
func (e Receipt) EventProduct() ProductKey { return e.Product }
func (e Receipt) EventDay() int            { return e.Day }
func (e Receipt) flows() (decimal.Decimal, decimal.Decimal) {
	return e.Qty, decimal.Zero
}

func (e ScheduledProduction) Kind() EventKind          { return EventKindScheduledProduction }
func (e ScheduledProduction) EventProduct() ProductKey { return e.Product }
func (e ScheduledProduction) EventDay() int            { return e.Day }
func (e ScheduledProduction) flows() (decimal.Decimal, decimal.Decimal) {
	return e.Qty, decimal.Zero
}

func (e CommittedOutbound) Kind() EventKind          { return EventKindCommittedOutbound }
func (e CommittedOutbound) EventProduct() ProductKey { return e.Product }
func (e CommittedOutbound) EventDay() int            { return e.Day }
func (e CommittedOutbound) flows() (decimal.Decimal, decimal.Decimal) {
	return decimal.Zero, e.Qty
}

func (e Adjustment) Kind() EventKind          { return EventKindAdjustment }
func (e Adjustment) EventProduct() ProductKey { return e.Product }
func (e Adjustment) EventDay() int            { return e.Day }
func (e Adjustment) flows() (decimal.Decimal, decimal.Decimal) {
	if e.QtySigned.IsNegative() {
		return decimal.Zero, e.QtySigned.Neg()
	}
	return e.QtySigned, decimal.Zero
}

package projection

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProjectionCalculator is pure: running balances, the first rupture day and the short-window
// minimum, from an opening balance and per-day net deltas.
type ProjectionCalculator struct {
	MinWindowDays int
}

func NewProjectionCalculator(minWindowDays int) ProjectionCalculator {
	if minWindowDays <= 0 {
		minWindowDays = DefaultMinWindowDays
	}
	return ProjectionCalculator{MinWindowDays: minWindowDays}
}

// Project uses the default seven-day minimum window.
func Project(initialBalance decimal.Decimal, deltas []decimal.Decimal, horizon int) (*DailyProjection, error) {
	return NewProjectionCalculator(DefaultMinWindowDays).Project(initialBalance, deltas, horizon)
}

func (c ProjectionCalculator) Project(initialBalance decimal.Decimal, deltas []decimal.Decimal, horizon int) (*DailyProjection, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("%w: negative horizon %d", ErrInvalidProjectionInput, horizon)
	}
	if len(deltas) != horizon+1 {
		return nil, fmt.Errorf("%w: %d deltas for horizon %d", ErrInvalidProjectionInput, len(deltas), horizon)
	}

	balances := make([]decimal.Decimal, horizon+1)
	running := initialBalance
	var ruptureDay *int
	for i, d := range deltas {
		running = running.Add(d)
		balances[i] = running
		if ruptureDay == nil && running.IsNegative() {
			day := i
			ruptureDay = &day
		}
	}

	return &DailyProjection{
		Horizon:          horizon,
		InitialBalance:   initialBalance,
		Balances:         balances,
		RuptureDay:       ruptureDay,
		MinBalanceWindow: c.windowMin(balances),
	}, nil
}

// ProjectDeltas projects aggregated movements and keeps the per-day cardex rows.
func (c ProjectionCalculator) ProjectDeltas(d *DayDeltas) (*DailyProjection, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil deltas", ErrInvalidProjectionInput)
	}
	if len(d.Inflow) != len(d.Outflow) {
		return nil, fmt.Errorf("%w: %d inflow days vs %d outflow days", ErrInvalidProjectionInput, len(d.Inflow), len(d.Outflow))
	}
	p, err := c.Project(d.InitialBalance, d.Deltas(), d.Horizon)
	if err != nil {
		return nil, err
	}
	p.Product = d.Product
	p.AsOf = d.AsOf

	p.Cardex = make([]CardexDay, len(p.Balances))
	opening := d.InitialBalance
	for i, closing := range p.Balances {
		p.Cardex[i] = CardexDay{
			Day:     i,
			Opening: opening,
			Inflow:  d.Inflow[i],
			Outflow: d.Outflow[i],
			Closing: closing,
		}
		opening = closing
	}
	return p, nil
}

func (c ProjectionCalculator) windowMin(balances []decimal.Decimal) decimal.Decimal {
	window := c.MinWindowDays
	if window <= 0 {
		window = DefaultMinWindowDays
	}
	if window > len(balances) {
		window = len(balances)
	}
	lowest := balances[0]
	for _, b := range balances[1:window] {
		if b.LessThan(lowest) {
			lowest = b
		}
	}
	return lowest
}

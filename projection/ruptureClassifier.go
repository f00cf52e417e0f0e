package projection

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RuptureClassifier turns projections into line and order verdicts. It does no I/O.
type RuptureClassifier struct {
	// AtRiskBufferDays is how many days before the requested day a rupture may start
	// while the line is still AT_RISK rather than RUPTURED.
	AtRiskBufferDays int
}

func NewRuptureClassifier(atRiskBufferDays int) *RuptureClassifier {
	if atRiskBufferDays < 0 {
		atRiskBufferDays = DefaultAtRiskBufferDays
	}
	return &RuptureClassifier{AtRiskBufferDays: atRiskBufferDays}
}

// Classify checks a single line in isolation with the default three-day buffer.
func Classify(p *DailyProjection, requestedQty decimal.Decimal, requestedDay int) OrderLineAvailability {
	return NewRuptureClassifier(DefaultAtRiskBufferDays).ClassifyLine(p, requestedQty, requestedDay, requestedQty)
}

// ClassifyLine classifies one line. cumulativeQty is the order's total request for the
// product on or before requestedDay, this line included.
func (c *RuptureClassifier) ClassifyLine(p *DailyProjection, requestedQty decimal.Decimal, requestedDay int, cumulativeQty decimal.Decimal) OrderLineAvailability {
	line := OrderLineAvailability{
		RequestedQty: requestedQty,
		RequestedDay: requestedDay,
	}
	if p == nil {
		line.Verdict = VerdictAtRisk
		line.Reason = "projection unavailable"
		return line
	}
	line.Product = p.Product

	// Overdue lines are checked against today's balance.
	day := requestedDay
	if day < 0 {
		day = 0
	}
	if day > p.Horizon {
		line.Verdict = VerdictAtRisk
		line.Reason = fmt.Sprintf("requested day %d is beyond the %d-day projection horizon", requestedDay, p.Horizon)
		return line
	}

	balance, _ := p.BalanceOn(day)
	line.ProjectedBalanceOnDay = &balance

	switch {
	case !balance.IsNegative() && cumulativeQty.LessThanOrEqual(balance):
		line.Verdict = VerdictOK
	case balance.IsNegative() && p.RuptureDay != nil && *p.RuptureDay > day-c.AtRiskBufferDays:
		line.Verdict = VerdictAtRisk
		line.Reason = fmt.Sprintf("stock ruptures on day %d", *p.RuptureDay)
	case balance.IsNegative() && p.RuptureDay != nil:
		line.Verdict = VerdictRuptured
		line.Reason = fmt.Sprintf("stock ruptured on day %d", *p.RuptureDay)
	default:
		line.Verdict = VerdictRuptured
		line.Reason = fmt.Sprintf("projected balance %s does not cover requested %s", balance.String(), cumulativeQty.String())
	}
	return line
}

// ClassifyOrder classifies every line of an order. Lines whose product is in failures are
// AT_RISK with the failure as reason; lines with no projection at all are AT_RISK too.
func (c *RuptureClassifier) ClassifyOrder(orderRef string, lines []OrderLine, projections map[ProductKey]*DailyProjection, failures map[ProductKey]string) *OrderAvailabilityReport {
	report := &OrderAvailabilityReport{
		OrderRef: orderRef,
		Lines:    make([]OrderLineAvailability, 0, len(lines)),
	}
	okCount := 0
	for i, l := range lines {
		var avail OrderLineAvailability
		if reason, failed := failures[l.Product]; failed {
			avail = OrderLineAvailability{
				Product:      l.Product,
				RequestedQty: l.Qty,
				RequestedDay: l.Day,
				Verdict:      VerdictAtRisk,
				Reason:       reason,
			}
		} else {
			avail = c.ClassifyLine(projections[l.Product], l.Qty, l.Day, cumulativeQty(lines, i))
			avail.Product = l.Product
		}
		avail.LineRef = l.LineRef
		if avail.Verdict == VerdictOK {
			okCount++
		}
		lineVerdicts.WithLabelValues(string(avail.Verdict)).Inc()
		report.Lines = append(report.Lines, avail)
	}

	if len(lines) == 0 {
		report.PctAvailable = 1
	} else {
		report.PctAvailable = float64(okCount) / float64(len(lines))
	}
	report.OverallOk = okCount == len(lines)
	return report
}

// cumulativeQty sums the order's quantity for lines[i]'s product on or before its day.
func cumulativeQty(lines []OrderLine, i int) decimal.Decimal {
	target := lines[i]
	day := max(target.Day, 0)
	total := decimal.Zero
	for _, l := range lines {
		if l.Product == target.Product && max(l.Day, 0) <= day {
			total = total.Add(l.Qty)
		}
	}
	return total
}

package projection

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustProject(t *testing.T, product ProductKey, initial int64, deltas ...int64) *DailyProjection {
	t.Helper()
	p, err := Project(decimal.NewFromInt(initial), decs(deltas...), len(deltas)-1)
	require.NoError(t, err)
	p.Product = product
	return p
}

func TestClassify_CoverageNotJustSign(t *testing.T) {
	p := mustProject(t, "SKU-1", 100, -30, -40, 50, -30, 0, 0, 0)

	line := Classify(p, decimal.NewFromInt(40), 1)
	assert.Equal(t, VerdictRuptured, line.Verdict)
	require.NotNil(t, line.ProjectedBalanceOnDay)
	assert.True(t, line.ProjectedBalanceOnDay.Equal(decimal.NewFromInt(30)))

	line = Classify(p, decimal.NewFromInt(30), 1)
	assert.Equal(t, VerdictOK, line.Verdict)
}

func TestClassify_BeyondHorizon(t *testing.T) {
	p := mustProject(t, "SKU-1", 100, 0, 0, 0)
	line := Classify(p, decimal.NewFromInt(1), 3)
	assert.Equal(t, VerdictAtRisk, line.Verdict)
	assert.Nil(t, line.ProjectedBalanceOnDay)
	assert.NotEmpty(t, line.Reason)
}

func TestClassify_RuptureBuffer(t *testing.T) {
	// balances: 15 5 -5 -15 -25 -35 -45, rupture on day 2
	p := mustProject(t, "SKU-2", 25, -10, -10, -10, -10, -10, -10, -10)

	cases := []struct {
		day  int
		want Verdict
	}{
		{day: 1, want: VerdictOK},
		{day: 2, want: VerdictAtRisk},
		{day: 4, want: VerdictAtRisk},
		{day: 5, want: VerdictRuptured},
		{day: 6, want: VerdictRuptured},
	}
	for _, tc := range cases {
		line := Classify(p, decimal.NewFromInt(1), tc.day)
		assert.Equalf(t, tc.want, line.Verdict, "day %d", tc.day)
	}
}

func TestClassify_ConfigurableBuffer(t *testing.T) {
	p := mustProject(t, "SKU-2", 25, -10, -10, -10, -10, -10, -10, -10)
	c := NewRuptureClassifier(0)
	line := c.ClassifyLine(p, decimal.NewFromInt(1), 2, decimal.NewFromInt(1))
	assert.Equal(t, VerdictRuptured, line.Verdict)
}

func TestClassify_OverdueLineUsesToday(t *testing.T) {
	p := mustProject(t, "SKU-3", 10, 0, 0)
	line := Classify(p, decimal.NewFromInt(5), -4)
	assert.Equal(t, VerdictOK, line.Verdict)
	assert.Equal(t, -4, line.RequestedDay)
}

func TestClassify_NilProjection(t *testing.T) {
	line := Classify(nil, decimal.NewFromInt(5), 0)
	assert.Equal(t, VerdictAtRisk, line.Verdict)
}

func TestClassifyOrder_CumulativeDemand(t *testing.T) {
	p := mustProject(t, "A", 50, 0, 0, 0)
	lines := []OrderLine{
		{LineRef: "1", Product: "A", Qty: decimal.NewFromInt(30), Day: 0},
		{LineRef: "2", Product: "A", Qty: decimal.NewFromInt(30), Day: 1},
	}
	report := NewRuptureClassifier(3).ClassifyOrder("SO-1", lines, map[ProductKey]*DailyProjection{"A": p}, nil)

	require.Len(t, report.Lines, 2)
	assert.Equal(t, VerdictOK, report.Lines[0].Verdict)
	assert.Equal(t, VerdictRuptured, report.Lines[1].Verdict)
	assert.Equal(t, 0.5, report.PctAvailable)
	assert.False(t, report.OverallOk)
	assert.True(t, report.HasRupture())
}

func TestClassifyOrder_FailedProduct(t *testing.T) {
	ok := mustProject(t, "A", 50, 0)
	lines := []OrderLine{
		{LineRef: "1", Product: "A", Qty: decimal.NewFromInt(1), Day: 0},
		{LineRef: "2", Product: "B", Qty: decimal.NewFromInt(1), Day: 0},
	}
	report := NewRuptureClassifier(3).ClassifyOrder("SO-2", lines,
		map[ProductKey]*DailyProjection{"A": ok},
		map[ProductKey]string{"B": "data unavailable: boom"})

	assert.Equal(t, VerdictOK, report.Lines[0].Verdict)
	assert.Equal(t, VerdictAtRisk, report.Lines[1].Verdict)
	assert.Equal(t, "data unavailable: boom", report.Lines[1].Reason)
	assert.Equal(t, ProductKey("B"), report.Lines[1].Product)
}

func TestClassifyOrder_Empty(t *testing.T) {
	report := NewRuptureClassifier(3).ClassifyOrder("SO-3", nil, nil, nil)
	assert.Equal(t, 1.0, report.PctAvailable)
	assert.True(t, report.OverallOk)
	assert.Empty(t, report.Lines)
}

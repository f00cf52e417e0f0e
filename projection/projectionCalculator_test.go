package projection

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(vals ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func assertBalances(t *testing.T, want []decimal.Decimal, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "balance[%d]: want %s got %s", i, want[i], got[i])
	}
}

func TestProject_NoRupture(t *testing.T) {
	p, err := Project(decimal.NewFromInt(100), decs(-30, -40, 50, -30, 0, 0, 0), 6)
	require.NoError(t, err)

	assertBalances(t, decs(70, 30, 80, 50, 50, 50, 50), p.Balances)
	assert.Nil(t, p.RuptureDay)
	assert.True(t, p.MinBalanceWindow.Equal(decimal.NewFromInt(30)), "min window = %s", p.MinBalanceWindow)
}

func TestProject_RuptureOnDayTwo(t *testing.T) {
	p, err := Project(decimal.NewFromInt(25), decs(-10, -10, -10, -10, -10, -10, -10), 6)
	require.NoError(t, err)

	assertBalances(t, decs(15, 5, -5, -15, -25, -35, -45), p.Balances)
	require.NotNil(t, p.RuptureDay)
	assert.Equal(t, 2, *p.RuptureDay)
}

func TestProject_ZeroBalanceIsNotRupture(t *testing.T) {
	p, err := Project(decimal.NewFromInt(10), decs(-10, 0), 1)
	require.NoError(t, err)
	assert.Nil(t, p.RuptureDay)
	assert.True(t, p.MinBalanceWindow.IsZero())
}

func TestProject_HorizonZero(t *testing.T) {
	p, err := Project(decimal.NewFromInt(5), decs(-7), 0)
	require.NoError(t, err)
	assertBalances(t, decs(-2), p.Balances)
	require.NotNil(t, p.RuptureDay)
	assert.Equal(t, 0, *p.RuptureDay)
	assert.True(t, p.MinBalanceWindow.Equal(decimal.NewFromInt(-2)))
}

func TestProject_WindowLongerThanHorizon(t *testing.T) {
	p, err := Project(decimal.NewFromInt(5), decs(1, -3, 4), 2)
	require.NoError(t, err)
	assert.True(t, p.MinBalanceWindow.Equal(decimal.NewFromInt(3)))
}

func TestProject_WindowIgnoresLaterDays(t *testing.T) {
	// day 7 is outside the default seven-day window
	p, err := Project(decimal.NewFromInt(10), decs(0, 0, 0, 0, 0, 0, 0, -50), 7)
	require.NoError(t, err)
	assert.True(t, p.MinBalanceWindow.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, p.RuptureDay)
	assert.Equal(t, 7, *p.RuptureDay)
}

func TestProject_InvalidInput(t *testing.T) {
	_, err := Project(decimal.Zero, decs(1, 2), -1)
	assert.True(t, errors.Is(err, ErrInvalidProjectionInput))

	_, err = Project(decimal.Zero, decs(1, 2), 2)
	assert.True(t, errors.Is(err, ErrInvalidProjectionInput))
}

func TestProject_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	shapes := []struct {
		name     string
		min, max int64
	}{
		{"all positive", 0, 50},
		{"all negative", -50, 0},
		{"mixed", -50, 50},
	}
	for _, shape := range shapes {
		t.Run(shape.name, func(t *testing.T) {
			for iter := 0; iter < 200; iter++ {
				horizon := rng.Intn(40)
				initial := decimal.NewFromInt(rng.Int63n(200) - 50)
				deltas := make([]decimal.Decimal, horizon+1)
				for i := range deltas {
					deltas[i] = decimal.NewFromInt(shape.min + rng.Int63n(shape.max-shape.min+1))
				}

				p, err := Project(initial, deltas, horizon)
				require.NoError(t, err)
				require.Len(t, p.Balances, horizon+1)

				prev := initial
				firstNegative := -1
				for i, b := range p.Balances {
					require.Truef(t, b.Equal(prev.Add(deltas[i])), "balance[%d] breaks the running sum", i)
					if firstNegative < 0 && b.IsNegative() {
						firstNegative = i
					}
					prev = b
				}
				if firstNegative < 0 {
					require.Nil(t, p.RuptureDay)
				} else {
					require.NotNil(t, p.RuptureDay)
					require.Equal(t, firstNegative, *p.RuptureDay)
				}
			}
		})
	}
}

func TestProjectDeltas_Cardex(t *testing.T) {
	d := &DayDeltas{
		Product:        "S:1",
		Horizon:        2,
		InitialBalance: decimal.NewFromInt(10),
		Inflow:         decs(5, 0, 20),
		Outflow:        decs(8, 4, 0),
	}
	p, err := NewProjectionCalculator(7).ProjectDeltas(d)
	require.NoError(t, err)

	assert.Equal(t, ProductKey("S:1"), p.Product)
	assertBalances(t, decs(7, 3, 23), p.Balances)
	require.Len(t, p.Cardex, 3)
	assert.True(t, p.Cardex[0].Opening.Equal(decimal.NewFromInt(10)))
	assert.True(t, p.Cardex[1].Opening.Equal(decimal.NewFromInt(7)))
	assert.True(t, p.Cardex[1].Outflow.Equal(decimal.NewFromInt(4)))
	assert.True(t, p.Cardex[2].Closing.Equal(decimal.NewFromInt(23)))
}

func TestProjectDeltas_MismatchedFlows(t *testing.T) {
	_, err := NewProjectionCalculator(7).ProjectDeltas(&DayDeltas{Horizon: 1, Inflow: decs(1, 1), Outflow: decs(1)})
	assert.True(t, errors.Is(err, ErrInvalidProjectionInput))
}

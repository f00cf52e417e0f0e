package middlewares

import (
	"testing"
	"time"

	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLoaderResults_FillsMissingWithDefault(t *testing.T) {
	ship := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	results := generateLoaderResults([]models.ShipmentBatch{{ID: 2, PlannedShipDate: ship}}, []int{1, 2})

	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Data.ID)
	assert.True(t, results[0].Data.PlannedShipDate.IsZero())
	assert.Equal(t, models.ShipmentBatchStatusPlanned, results[0].Data.CurrentStatus)
	assert.Equal(t, ship, results[1].Data.PlannedShipDate)
}

func TestGenerateLoaderArrayResults_GroupsByReference(t *testing.T) {
	details := []models.SalesOrderDetail{
		{ID: 1, SalesOrderId: 10, DetailQty: decimal.NewFromInt(1)},
		{ID: 2, SalesOrderId: 11, DetailQty: decimal.NewFromInt(2)},
		{ID: 3, SalesOrderId: 10, DetailQty: decimal.NewFromInt(3)},
	}
	results := generateLoaderArrayResults(details, []int{10, 11, 12})

	require.Len(t, results, 3)
	require.Len(t, results[0].Data, 2)
	assert.Equal(t, 1, results[0].Data[0].ID)
	assert.Equal(t, 3, results[0].Data[1].ID)
	require.Len(t, results[1].Data, 1)
	assert.Empty(t, results[2].Data)
}

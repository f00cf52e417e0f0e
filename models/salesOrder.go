package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SalesOrder struct {
	ID                   int                `gorm:"primary_key" json:"id"`
	BusinessId           string             `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId           int                `gorm:"index;not null" json:"customer_id" binding:"required"`
	OrderNumber          string             `gorm:"size:255;not null;index" json:"order_number" binding:"required"`
	OrderDate            time.Time          `gorm:"not null" json:"order_date" binding:"required"`
	ExpectedShipmentDate *time.Time         `json:"expected_shipment_date"`
	CurrentStatus        SalesOrderStatus   `gorm:"type:enum('Draft', 'Confirmed','Partially Invoiced', 'Closed', 'Cancelled');not null" json:"current_status" binding:"required"`
	WarehouseId          int                `gorm:"not null" json:"warehouse_id"`
	CreatedAt            time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	Details              []SalesOrderDetail `gorm:"foreignKey:SalesOrderId" json:"details"`
}

type SalesOrderDetail struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SalesOrderId      int             `gorm:"index;not null" json:"sales_order_id" binding:"required"`
	ProductId         int             `json:"product_id"`
	ProductType       ProductType     `gorm:"type:enum('S','G','C','V','I');default:S" json:"product_type"`
	Name              string          `gorm:"size:100" json:"name" binding:"required"`
	DetailQty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailInvoicedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_invoiced_qty"`
	// ShipmentBatchId is set once the line is allocated to a shipment batch; from then on the
	// line is committed outbound demand.
	ShipmentBatchId *int `gorm:"index;default:null" json:"shipment_batch_id"`
}

func (so *SalesOrder) AffectedProducts() []projection.ProductKey {
	if so == nil {
		return nil
	}
	keys := make([]projection.ProductKey, 0, len(so.Details))
	for i := range so.Details {
		keys = append(keys, so.Details[i].AffectedProducts()...)
	}
	return keys
}

func (d *SalesOrderDetail) AffectedProducts() []projection.ProductKey {
	if d == nil || d.ProductId == 0 {
		return nil
	}
	return []projection.ProductKey{ProductKeyFor(d.ProductType, d.ProductId)}
}

func (d SalesOrderDetail) OpenQty() decimal.Decimal {
	open := d.DetailQty.Sub(d.DetailInvoicedQty)
	if open.IsNegative() {
		return decimal.Zero
	}
	return open
}

func (d SalesOrderDetail) GetReferenceId() int {
	return d.SalesOrderId
}

// shipDate picks the date a line is expected to leave: its batch, else the order's expected
// shipment date, else the order date.
func (so SalesOrder) shipDate(batch *ShipmentBatch) time.Time {
	if batch != nil && !batch.PlannedShipDate.IsZero() {
		return batch.PlannedShipDate
	}
	if so.ExpectedShipmentDate != nil && !so.ExpectedShipmentDate.IsZero() {
		return *so.ExpectedShipmentDate
	}
	return so.OrderDate
}

// OrderLines turns the open details of an order into lines to classify. batches maps a
// shipment batch id to its batch; details without a batch fall back to the order dates.
func (so SalesOrder) OrderLines(details []*SalesOrderDetail, batches map[int]*ShipmentBatch, asOf time.Time, loc *time.Location) []projection.OrderLine {
	lines := make([]projection.OrderLine, 0, len(details))
	for _, d := range details {
		if d == nil || d.ProductId == 0 {
			continue
		}
		qty := d.OpenQty()
		if !qty.IsPositive() {
			continue
		}
		var batch *ShipmentBatch
		if d.ShipmentBatchId != nil {
			batch = batches[*d.ShipmentBatchId]
		}
		lines = append(lines, projection.OrderLine{
			LineRef: fmt.Sprintf("%s#%d", so.OrderNumber, d.ID),
			Product: ProductKeyFor(d.ProductType, d.ProductId),
			Qty:     qty,
			Day:     dayOffset(asOf, so.shipDate(batch), loc),
		})
	}
	return lines
}

// ActiveOrderNumbers lists the order numbers of confirmed and partially invoiced orders,
// scoped to the business in ctx when one is set.
func ActiveOrderNumbers(ctx context.Context, db *gorm.DB) ([]string, error) {
	var numbers []string
	q := db.WithContext(ctx).Model(&SalesOrder{}).
		Where("current_status IN ?", activeSalesOrderStatuses)
	err := scoped(ctx, q, "business_id").Order("order_number").Distinct().Pluck("order_number", &numbers).Error
	return numbers, err
}

// ActiveBusinessIds lists businesses that have at least one active order.
func ActiveBusinessIds(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&SalesOrder{}).
		Where("current_status IN ?", activeSalesOrderStatuses).
		Distinct().Order("business_id").Pluck("business_id", &ids).Error
	return ids, err
}

package models

import (
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/shopspring/decimal"
)

type PurchaseOrder struct {
	ID                   int                   `gorm:"primary_key" json:"id"`
	BusinessId           string                `gorm:"index;not null" json:"business_id" binding:"required"`
	SupplierId           int                   `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderNumber          string                `gorm:"size:255;not null" json:"order_number" binding:"required"`
	OrderDate            time.Time             `gorm:"not null" json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time            `gorm:"default:null" json:"expected_delivery_date"`
	CurrentStatus        PurchaseOrderStatus   `gorm:"type:enum('Draft','Confirmed','Partially Billed','Closed','Cancelled');not null" json:"current_status" binding:"required"`
	WarehouseId          int                   `gorm:"not null" json:"warehouse_id"`
	Details              []PurchaseOrderDetail `json:"purchase_order_details" validate:"required,dive,required"`
	CreatedAt            time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id" binding:"required"`
	ProductId       int             `gorm:"index" json:"product_id"`
	ProductType     ProductType     `gorm:"type:enum('S','G','C','V','I');default:S" json:"product_type"`
	Name            string          `gorm:"size:100" json:"name" binding:"required"`
	DetailQty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailBilledQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_billed_qty"`
}

func (po *PurchaseOrder) AffectedProducts() []projection.ProductKey {
	if po == nil {
		return nil
	}
	keys := make([]projection.ProductKey, 0, len(po.Details))
	for i := range po.Details {
		keys = append(keys, po.Details[i].AffectedProducts()...)
	}
	return keys
}

func (d *PurchaseOrderDetail) AffectedProducts() []projection.ProductKey {
	if d == nil || d.ProductId == 0 {
		return nil
	}
	return []projection.ProductKey{ProductKeyFor(d.ProductType, d.ProductId)}
}

// OpenQty is what has been ordered but not yet billed into stock.
func (d PurchaseOrderDetail) OpenQty() decimal.Decimal {
	open := d.DetailQty.Sub(d.DetailBilledQty)
	if open.IsNegative() {
		return decimal.Zero
	}
	return open
}

package models

import (
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockHistory is the posted stock ledger. Rows are append-only; corrections are reversal rows.
type StockHistory struct {
	ID                       int                `gorm:"primary_key" json:"id"`
	BusinessId               string             `gorm:"index;not null" json:"business_id"`
	WarehouseId              int                `gorm:"index;not null" json:"warehouse_id"`
	ProductId                int                `gorm:"index;not null" json:"product_id"`
	ProductType              ProductType        `gorm:"type:enum('S','G','C','V','I');default:S" json:"product_type"`
	BatchNumber              string             `gorm:"size:100" json:"batch_number"`
	StockDate                time.Time          `gorm:"index;not null" json:"stock_date"`
	Qty                      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Description              string             `gorm:"size:100;not null" json:"description"`
	ReferenceType            StockReferenceType `gorm:"type:enum('IV','CN','BL','SC','IVAQ','IVAV','TO','POS','PGOS','PCOS')" json:"reference_type"`
	ReferenceID              int                `json:"reference_id"`
	ReferenceDetailID        int                `json:"reference_detail_id"`
	IsOutgoing               *bool              `gorm:"not null;default:false" json:"is_outgoing"`
	IsTransferIn             *bool              `gorm:"not null;default:false" json:"is_transfer_in"`
	IsReversal               bool               `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesStockHistoryId   *int               `gorm:"index" json:"reverses_stock_history_id"`
	ReversedByStockHistoryId *int               `gorm:"index" json:"reversed_by_stock_history_id"`
	CreatedAt                time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave keeps IsOutgoing consistent with the quantity sign.
func (sh *StockHistory) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if sh == nil {
		return nil
	}
	if sh.IsOutgoing == nil {
		b := false
		sh.IsOutgoing = &b
	}
	if sh.IsTransferIn == nil {
		b := false
		sh.IsTransferIn = &b
	}
	if sh.Qty.IsZero() {
		return nil
	}
	b := sh.Qty.IsNegative()
	sh.IsOutgoing = &b
	return nil
}

func (sh *StockHistory) AffectedProducts() []projection.ProductKey {
	if sh == nil || sh.ProductId == 0 {
		return nil
	}
	return []projection.ProductKey{ProductKeyFor(sh.ProductType, sh.ProductId)}
}

// toEvent maps a posted row inside the projection window. Positive receipts stay receipts;
// everything else is a signed adjustment.
func (sh StockHistory) toEvent(asOf time.Time, loc *time.Location) projection.StockEvent {
	key := ProductKeyFor(sh.ProductType, sh.ProductId)
	day := dayOffset(asOf, sh.StockDate, loc)
	if sh.Qty.IsPositive() && sh.ReferenceType.IsReceipt() {
		return projection.Receipt{Product: key, Day: day, Qty: sh.Qty}
	}
	return projection.Adjustment{Product: key, Day: day, QtySigned: sh.Qty}
}

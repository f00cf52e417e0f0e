package models

import (
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/shopspring/decimal"
)

// ProductionSchedule is a planned production run that will add Qty of a product to stock on
// ScheduledDate.
type ProductionSchedule struct {
	ID            int                      `gorm:"primary_key" json:"id"`
	BusinessId    string                   `gorm:"index;not null" json:"business_id"`
	WarehouseId   int                      `gorm:"index;not null" json:"warehouse_id"`
	ProductId     int                      `gorm:"index;not null" json:"product_id"`
	ProductType   ProductType              `gorm:"type:enum('S','G','C','V','I');default:S" json:"product_type"`
	ScheduledDate time.Time                `gorm:"index;not null" json:"scheduled_date"`
	Qty           decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CurrentStatus ProductionScheduleStatus `gorm:"type:enum('Draft','Scheduled','Confirmed','Completed','Cancelled');not null;default:Draft" json:"current_status"`
	CreatedAt     time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ps *ProductionSchedule) AffectedProducts() []projection.ProductKey {
	if ps == nil || ps.ProductId == 0 {
		return nil
	}
	return []projection.ProductKey{ProductKeyFor(ps.ProductType, ps.ProductId)}
}

package models

import (
	"time"
)

// ShipmentBatch groups allocated sales order lines that leave the warehouse together.
type ShipmentBatch struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	BusinessId      string              `gorm:"index;not null" json:"business_id"`
	WarehouseId     int                 `gorm:"index;not null" json:"warehouse_id"`
	BatchNumber     string              `gorm:"size:100;not null" json:"batch_number"`
	PlannedShipDate time.Time           `gorm:"index;not null" json:"planned_ship_date"`
	CurrentStatus   ShipmentBatchStatus `gorm:"type:enum('Planned','Shipped','Cancelled');not null;default:Planned" json:"current_status"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b ShipmentBatch) GetId() int {
	return b.ID
}

func (b ShipmentBatch) GetDefault(id int) Data {
	return ShipmentBatch{
		ID:            id,
		CurrentStatus: ShipmentBatchStatusPlanned,
	}
}

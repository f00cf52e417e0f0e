package models

import (
	"log"

	"github.com/mmdatafocus/rupture_engine/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StockHistory{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&ProductionSchedule{},
		&SalesOrder{}, &SalesOrderDetail{}, &ShipmentBatch{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

package models

import (
	"errors"
)

type ProductType string

const (
	ProductTypeSingle    ProductType = "S"
	ProductTypeGroup     ProductType = "G"
	ProductTypeComposite ProductType = "C"
	ProductTypeVariant   ProductType = "V"
	ProductTypeInput     ProductType = "I"
)

func ParseProductType(str string) (ProductType, error) {
	switch str {
	case "S":
		return ProductTypeSingle, nil
	case "G":
		return ProductTypeGroup, nil
	case "C":
		return ProductTypeComposite, nil
	case "V":
		return ProductTypeVariant, nil
	case "I":
		return ProductTypeInput, nil
	default:
		return "", errors.New("invalid product type")
	}
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft           PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusConfirmed       PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusPartiallyBilled PurchaseOrderStatus = "Partially Billed"
	PurchaseOrderStatusClosed          PurchaseOrderStatus = "Closed"
	PurchaseOrderStatusCancelled       PurchaseOrderStatus = "Cancelled"
)

// open purchase orders still expect goods
var openPurchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusConfirmed,
	PurchaseOrderStatusPartiallyBilled,
}

type SalesOrderStatus string

const (
	SalesOrderStatusDraft             SalesOrderStatus = "Draft"
	SalesOrderStatusConfirmed         SalesOrderStatus = "Confirmed"
	SalesOrderStatusPartiallyInvoiced SalesOrderStatus = "Partially Invoiced"
	SalesOrderStatusClosed            SalesOrderStatus = "Closed"
	SalesOrderStatusCancelled         SalesOrderStatus = "Cancelled"
)

// active sales orders still commit stock
var activeSalesOrderStatuses = []SalesOrderStatus{
	SalesOrderStatusConfirmed,
	SalesOrderStatusPartiallyInvoiced,
}

type StockReferenceType string

const (
	StockReferenceTypeBill                         StockReferenceType = "BL"
	StockReferenceTypeInvoice                      StockReferenceType = "IV"
	StockReferenceTypeCreditNote                   StockReferenceType = "CN"
	StockReferenceTypeSupplierCredit               StockReferenceType = "SC"
	StockReferenceTypeProductOpeningStock          StockReferenceType = "POS"
	StockReferenceTypeProductGroupOpeningStock     StockReferenceType = "PGOS"
	StockReferenceTypeProductCompositeOpeningStock StockReferenceType = "PCOS"
	StockReferenceTypeInventoryAdjustmentQuantity  StockReferenceType = "IVAQ"
	StockReferenceTypeInventoryAdjustmentValue     StockReferenceType = "IVAV"
	StockReferenceTypeTransferOrder                StockReferenceType = "TO"
)

// IsReceipt reports whether a positive posting of this type is a goods receipt rather than
// a correction.
func (t StockReferenceType) IsReceipt() bool {
	switch t {
	case StockReferenceTypeBill,
		StockReferenceTypeCreditNote,
		StockReferenceTypeTransferOrder,
		StockReferenceTypeProductOpeningStock,
		StockReferenceTypeProductGroupOpeningStock,
		StockReferenceTypeProductCompositeOpeningStock:
		return true
	default:
		return false
	}
}

type ProductionScheduleStatus string

const (
	ProductionScheduleStatusDraft     ProductionScheduleStatus = "Draft"
	ProductionScheduleStatusScheduled ProductionScheduleStatus = "Scheduled"
	ProductionScheduleStatusConfirmed ProductionScheduleStatus = "Confirmed"
	ProductionScheduleStatusCompleted ProductionScheduleStatus = "Completed"
	ProductionScheduleStatusCancelled ProductionScheduleStatus = "Cancelled"
)

// completed runs are already posted to the stock ledger
var plannedProductionStatuses = []ProductionScheduleStatus{
	ProductionScheduleStatusScheduled,
	ProductionScheduleStatusConfirmed,
}

type ShipmentBatchStatus string

const (
	ShipmentBatchStatusPlanned   ShipmentBatchStatus = "Planned"
	ShipmentBatchStatusShipped   ShipmentBatchStatus = "Shipped"
	ShipmentBatchStatusCancelled ShipmentBatchStatus = "Cancelled"
)

type StockEventAction string

const (
	StockEventActionCreate StockEventAction = "C"
	StockEventActionUpdate StockEventAction = "U"
	StockEventActionDelete StockEventAction = "D"
)

func ParseStockEventAction(str string) (StockEventAction, error) {
	switch StockEventAction(str) {
	case StockEventActionCreate, StockEventActionUpdate, StockEventActionDelete:
		return StockEventAction(str), nil
	default:
		return "", errors.New("invalid stock event action")
	}
}

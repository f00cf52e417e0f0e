package models

import (
	"context"
	"sync"
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// LedgerStore reads balances and stock events for projections. It serves both
// projection.BalanceSource and projection.EventSource.
type LedgerStore struct {
	db  *gorm.DB
	loc *time.Location
}

func NewLedgerStore(db *gorm.DB, loc *time.Location) *LedgerStore {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerStore{db: db, loc: loc}
}

func dayOffset(asOf, t time.Time, loc *time.Location) int {
	return utils.DayOffset(utils.DateIn(asOf, loc), t.In(loc))
}

// scoped narrows a query to the request's business when one is set.
func scoped(ctx context.Context, q *gorm.DB, column string) *gorm.DB {
	if businessId, ok := utils.GetBusinessIdFromContext(ctx); ok && businessId != "" {
		return q.Where(column+" = ?", businessId)
	}
	return q
}

// ReadCurrentBalance sums active ledger rows dated before asOf.
func (s *LedgerStore) ReadCurrentBalance(ctx context.Context, product projection.ProductKey, asOf time.Time) (decimal.Decimal, error) {
	productType, productId, err := ParseProductKey(product)
	if err != nil {
		return decimal.Zero, err
	}
	start := utils.DateIn(asOf, s.loc)

	q := s.db.WithContext(ctx).Model(&StockHistory{}).
		Select("COALESCE(SUM(qty), 0)").
		Where("product_id = ? AND product_type = ?", productId, productType).
		Where("is_reversal = ? AND reversed_by_stock_history_id IS NULL", false).
		Where("stock_date < ?", start)
	q = scoped(ctx, q, "business_id")

	var total decimal.Decimal
	if err := q.Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ReadEvents returns posted movements inside the window plus every open commitment dated
// before its end. Open commitments dated before asOf come back with negative days.
func (s *LedgerStore) ReadEvents(ctx context.Context, product projection.ProductKey, asOf time.Time, horizon int) ([]projection.StockEvent, error) {
	productType, productId, err := ParseProductKey(product)
	if err != nil {
		return nil, err
	}
	start := utils.DateIn(asOf, s.loc)
	end := start.AddDate(0, 0, horizon+1)

	var (
		mu     sync.Mutex
		events []projection.StockEvent
	)
	collect := func(evs []projection.StockEvent) {
		mu.Lock()
		events = append(events, evs...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evs, err := s.postedMovements(gctx, productType, productId, start, end)
		collect(evs)
		return err
	})
	g.Go(func() error {
		evs, err := s.openPurchaseReceipts(gctx, productType, productId, start, end)
		collect(evs)
		return err
	})
	g.Go(func() error {
		evs, err := s.plannedProduction(gctx, productType, productId, start, end)
		collect(evs)
		return err
	})
	g.Go(func() error {
		evs, err := s.committedOutbound(gctx, productType, productId, start, end)
		collect(evs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *LedgerStore) postedMovements(ctx context.Context, productType ProductType, productId int, start, end time.Time) ([]projection.StockEvent, error) {
	var rows []StockHistory
	q := s.db.WithContext(ctx).
		Where("product_id = ? AND product_type = ?", productId, productType).
		Where("is_reversal = ? AND reversed_by_stock_history_id IS NULL", false).
		Where("stock_date >= ? AND stock_date < ?", start, end)
	if err := scoped(ctx, q, "business_id").Order("stock_date, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]projection.StockEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEvent(start, s.loc))
	}
	return events, nil
}

type openPurchaseLine struct {
	ProductId            int
	ProductType          ProductType
	DetailQty            decimal.Decimal
	DetailBilledQty      decimal.Decimal
	ExpectedDeliveryDate *time.Time
	OrderDate            time.Time
}

func (s *LedgerStore) openPurchaseReceipts(ctx context.Context, productType ProductType, productId int, start, end time.Time) ([]projection.StockEvent, error) {
	var rows []openPurchaseLine
	q := s.db.WithContext(ctx).Table("purchase_order_details AS d").
		Select("d.product_id, d.product_type, d.detail_qty, d.detail_billed_qty, po.expected_delivery_date, po.order_date").
		Joins("JOIN purchase_orders AS po ON po.id = d.purchase_order_id").
		Where("d.product_id = ? AND d.product_type = ?", productId, productType).
		Where("po.current_status IN ?", openPurchaseOrderStatuses).
		Where("d.detail_qty > d.detail_billed_qty").
		Where("COALESCE(po.expected_delivery_date, po.order_date) < ?", end)
	if err := scoped(ctx, q, "po.business_id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	key := ProductKeyFor(productType, productId)
	events := make([]projection.StockEvent, 0, len(rows))
	for _, row := range rows {
		due := row.OrderDate
		if row.ExpectedDeliveryDate != nil {
			due = *row.ExpectedDeliveryDate
		}
		detail := PurchaseOrderDetail{DetailQty: row.DetailQty, DetailBilledQty: row.DetailBilledQty}
		events = append(events, projection.Receipt{
			Product: key,
			Day:     dayOffset(start, due, s.loc),
			Qty:     detail.OpenQty(),
		})
	}
	return events, nil
}

func (s *LedgerStore) plannedProduction(ctx context.Context, productType ProductType, productId int, start, end time.Time) ([]projection.StockEvent, error) {
	var rows []ProductionSchedule
	q := s.db.WithContext(ctx).
		Where("product_id = ? AND product_type = ?", productId, productType).
		Where("current_status IN ?", plannedProductionStatuses).
		Where("scheduled_date < ?", end)
	if err := scoped(ctx, q, "business_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]projection.StockEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, projection.ScheduledProduction{
			Product: ProductKeyFor(row.ProductType, row.ProductId),
			Day:     dayOffset(start, row.ScheduledDate, s.loc),
			Qty:     row.Qty,
		})
	}
	return events, nil
}

type committedLine struct {
	ProductId         int
	ProductType       ProductType
	DetailQty         decimal.Decimal
	DetailInvoicedQty decimal.Decimal
	PlannedShipDate   time.Time
	OrderNumber       string
}

func (s *LedgerStore) committedOutbound(ctx context.Context, productType ProductType, productId int, start, end time.Time) ([]projection.StockEvent, error) {
	var rows []committedLine
	q := s.db.WithContext(ctx).Table("sales_order_details AS d").
		Select("d.product_id, d.product_type, d.detail_qty, d.detail_invoiced_qty, b.planned_ship_date, so.order_number").
		Joins("JOIN sales_orders AS so ON so.id = d.sales_order_id").
		Joins("JOIN shipment_batches AS b ON b.id = d.shipment_batch_id").
		Where("d.product_id = ? AND d.product_type = ?", productId, productType).
		Where("so.current_status IN ?", activeSalesOrderStatuses).
		Where("b.current_status = ?", ShipmentBatchStatusPlanned).
		Where("d.detail_qty > d.detail_invoiced_qty").
		Where("b.planned_ship_date < ?", end)
	if err := scoped(ctx, q, "so.business_id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	key := ProductKeyFor(productType, productId)
	events := make([]projection.StockEvent, 0, len(rows))
	for _, row := range rows {
		detail := SalesOrderDetail{DetailQty: row.DetailQty, DetailInvoicedQty: row.DetailInvoicedQty}
		events = append(events, projection.CommittedOutbound{
			Product:  key,
			Day:      dayOffset(start, row.PlannedShipDate, s.loc),
			Qty:      detail.OpenQty(),
			OrderRef: row.OrderNumber,
		})
	}
	return events, nil
}

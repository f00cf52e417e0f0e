package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/projection"
	"gorm.io/gorm"
)

// OrderLineSource resolves sales orders through the request loaders so a batch of
// concurrent reads shares a few queries.
type OrderLineSource struct {
	db  *gorm.DB
	loc *time.Location
}

func NewOrderLineSource(db *gorm.DB, loc *time.Location) *OrderLineSource {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderLineSource{db: db, loc: loc}
}

func (s *OrderLineSource) loaders(ctx context.Context) context.Context {
	if For(ctx) == nil {
		return WithLoaders(ctx, s.db)
	}
	return ctx
}

func (s *OrderLineSource) ReadOrderLines(ctx context.Context, orderRef string, asOf time.Time) ([]projection.OrderLine, error) {
	ctx = s.loaders(ctx)

	order, err := GetSalesOrder(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", projection.ErrOrderNotFound, orderRef)
	}

	details, err := GetSalesOrderDetails(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	batches := make(map[int]*models.ShipmentBatch)
	for _, d := range details {
		if d.ShipmentBatchId == nil {
			continue
		}
		if _, ok := batches[*d.ShipmentBatchId]; ok {
			continue
		}
		batch, err := GetShipmentBatch(ctx, *d.ShipmentBatchId)
		if err != nil {
			return nil, err
		}
		batches[*d.ShipmentBatchId] = batch
	}

	return order.OrderLines(details, batches, asOf, s.loc), nil
}

func (s *OrderLineSource) ListActiveOrderRefs(ctx context.Context) ([]string, error) {
	return models.ActiveOrderNumbers(ctx, s.db)
}

package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/utils"
	"gorm.io/gorm"
)

type salesOrderReader struct {
	db *gorm.DB
}

// GetSalesOrders loads orders by order number. Unknown numbers resolve to nil.
func (r *salesOrderReader) GetSalesOrders(ctx context.Context, orderNumbers []string) []*dataloader.Result[*models.SalesOrder] {
	var results []models.SalesOrder
	q := r.db.WithContext(ctx).Where("order_number IN ?", orderNumbers)
	if businessId, ok := utils.GetBusinessIdFromContext(ctx); ok && businessId != "" {
		q = q.Where("business_id = ?", businessId)
	}
	if err := q.Find(&results).Error; err != nil {
		return handleError[*models.SalesOrder](len(orderNumbers), err)
	}

	resultMap := make(map[string]*models.SalesOrder, len(results))
	for i := range results {
		resultMap[results[i].OrderNumber] = &results[i]
	}
	loaderResults := make([]*dataloader.Result[*models.SalesOrder], 0, len(orderNumbers))
	for _, number := range orderNumbers {
		loaderResults = append(loaderResults, &dataloader.Result[*models.SalesOrder]{Data: resultMap[number]})
	}
	return loaderResults
}

func GetSalesOrder(ctx context.Context, orderNumber string) (*models.SalesOrder, error) {
	loaders := For(ctx)
	return loaders.salesOrderLoader.Load(ctx, orderNumber)()
}

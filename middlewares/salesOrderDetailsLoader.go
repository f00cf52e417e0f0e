package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/rupture_engine/models"
	"gorm.io/gorm"
)

type salesOrderDetailReader struct {
	db *gorm.DB
}

func (r *salesOrderDetailReader) GetSalesOrderDetails(ctx context.Context, Ids []int) []*dataloader.Result[[]*models.SalesOrderDetail] {
	var results []models.SalesOrderDetail
	err := r.db.WithContext(ctx).Where("sales_order_id IN ?", Ids).Order("id").Find(&results).Error
	if err != nil {
		return handleError[[]*models.SalesOrderDetail](len(Ids), err)
	}

	return generateLoaderArrayResults(results, Ids)
}

func GetSalesOrderDetails(ctx context.Context, orderId int) ([]*models.SalesOrderDetail, error) {
	loaders := For(ctx)
	return loaders.salesOrderDetailLoader.Load(ctx, orderId)()
}

package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/rupture_engine/models"
	"gorm.io/gorm"
)

type shipmentBatchReader struct {
	db *gorm.DB
}

func (r *shipmentBatchReader) GetShipmentBatches(ctx context.Context, ids []int) []*dataloader.Result[*models.ShipmentBatch] {
	var results []models.ShipmentBatch
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.ShipmentBatch](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

func GetShipmentBatch(ctx context.Context, id int) (*models.ShipmentBatch, error) {
	loaders := For(ctx)
	return loaders.shipmentBatchLoader.Load(ctx, id)()
}

package middlewares

import (
	"context"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the order reads of one request. A batch analysis resolving hundreds of
// orders concurrently turns into a handful of IN queries.
type Loaders struct {
	salesOrderLoader       *dataloader.Loader[string, *models.SalesOrder]
	salesOrderDetailLoader *dataloader.Loader[int, []*models.SalesOrderDetail]
	shipmentBatchLoader    *dataloader.Loader[int, *models.ShipmentBatch]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	salesOrderReader := &salesOrderReader{db: conn}
	salesOrderDetailReader := &salesOrderDetailReader{db: conn}
	shipmentBatchReader := &shipmentBatchReader{db: conn}

	return &Loaders{
		salesOrderLoader:       dataloader.NewBatchedLoader(salesOrderReader.GetSalesOrders, dataloader.WithWait[string, *models.SalesOrder](time.Millisecond)),
		salesOrderDetailLoader: dataloader.NewBatchedLoader(salesOrderDetailReader.GetSalesOrderDetails, dataloader.WithWait[int, []*models.SalesOrderDetail](time.Millisecond)),
		shipmentBatchLoader:    dataloader.NewBatchedLoader(shipmentBatchReader.GetShipmentBatches, dataloader.WithWait[int, *models.ShipmentBatch](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithLoaders(c.Request.Context(), config.GetDB()))
		c.Next()
	}
}

// WithLoaders attaches fresh loaders for work that does not come through gin (sweeps, CLI).
func WithLoaders(ctx context.Context, conn *gorm.DB) context.Context {
	return context.WithValue(ctx, loadersKey, NewLoaders(conn))
}

func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// T must be struct
// each id has many related results
func generateLoaderArrayResults[T models.RelatedData](results []T, referenceIds []int) (loaderResults []*dataloader.Result[[]*T]) {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		// creating a new variable every turn, to avoid pointing to the adddress of result
		copy := result
		resultMap[result.GetReferenceId()] = append(resultMap[result.GetReferenceId()], &copy)
	}
	for _, id := range referenceIds {
		resultArray := resultMap[id]
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultArray})
	}
	return loaderResults
}

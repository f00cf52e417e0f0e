package utils

import (
	"context"

	"github.com/mmdatafocus/rupture_engine/appctx"
)

var (
	ContextKeyBusinessId    = appctx.ContextKeyBusinessId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeySkipInvalidation = appctx.ContextKeySkipInvalidation
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SkipInvalidation(ctx context.Context) bool {
	v, _ := appctx.GetBool(ctx, ContextKeySkipInvalidation)
	return v
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSkipInvalidationInContext(ctx context.Context) context.Context {
	return appctx.Set(ctx, ContextKeySkipInvalidation, true)
}

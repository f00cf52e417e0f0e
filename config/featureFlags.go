package config

import (
	"os"
	"strings"

	"github.com/mmdatafocus/rupture_engine/utils"
)

// ProjectionL2CacheEnabled shares computed projections between instances through Redis.
//
// Set via env:
// - PROJECTION_L2_CACHE=on
func ProjectionL2CacheEnabled() bool {
	return utils.BoolFromEnv("PROJECTION_L2_CACHE", false)
}

// StockEventPullEnabled starts the Pub/Sub pull receiver for stock events. Push delivery
// through POST /pubsub/stock-events works regardless.
//
// Set via env:
// - STOCK_EVENTS_PULL=true
func StockEventPullEnabled() bool {
	return utils.BoolFromEnv("STOCK_EVENTS_PULL", false)
}

// InvalidatingTables lists the tables whose writes invalidate projections.
//
// Set via env:
// - PROJECTION_INVALIDATING_TABLES="stock_histories,purchase_order_details,production_schedules,sales_order_details"
//
// Table names are case-insensitive.
func InvalidatingTables() map[string]bool {
	raw := os.Getenv("PROJECTION_INVALIDATING_TABLES")
	if strings.TrimSpace(raw) == "" {
		raw = "stock_histories,purchase_order_details,production_schedules,sales_order_details"
	}
	out := make(map[string]bool)
	for _, part := range utils.SplitAndTrim(raw) {
		out[strings.ToLower(part)] = true
	}
	return out
}

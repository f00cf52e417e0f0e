package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/middlewares"
	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/sirupsen/logrus"
)

type orderRefs []string

func (o *orderRefs) String() string { return strings.Join(*o, ",") }

func (o *orderRefs) Set(v string) error {
	*o = append(*o, utils.SplitAndTrim(v)...)
	return nil
}

func main() {
	var orders orderRefs
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	flag.Var(&orders, "order", "Order number to analyze (repeatable, or comma-separated)")
	allActive := flag.Bool("all-active", false, "Analyze every confirmed / partially invoiced order")
	product := flag.String("product", "", "Optional: print the projection of one product key (e.g. S:12)")
	horizon := flag.Int("horizon", -1, "Optional: horizon in days (defaults to PROJECTION_HORIZON_DAYS)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if len(orders) == 0 && !*allActive && *product == "" {
		fmt.Fprintln(os.Stderr, "one of --order, --all-active or --product is required")
		os.Exit(1)
	}

	settings, err := config.LoadProjectionSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *horizon >= 0 {
		settings.HorizonDays = *horizon
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	ledger := models.NewLedgerStore(db, settings.Location)
	cache := projection.NewProjectionCache(projection.WithTTL(settings.CacheTTL), projection.WithCacheLogger(logger))
	orchestrator := projection.NewBatchOrchestrator(
		cache,
		projection.NewMovementAggregator(ledger, ledger, settings.StoreTimeout, logger),
		middlewares.NewOrderLineSource(db, settings.Location),
		settings,
		logger,
	)

	ctx := utils.SetBusinessIdInContext(context.Background(), strings.TrimSpace(*businessID))
	ctx = middlewares.WithLoaders(ctx, db)

	var out any
	switch {
	case *product != "":
		key := projection.ProductKey(strings.TrimSpace(*product))
		if _, _, err := models.ParseProductKey(key); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		out, err = orchestrator.Projection(ctx, key, settings.HorizonDays)
	case *allActive:
		out, err = orchestrator.AnalyzeAllActive(ctx)
	case len(orders) == 1:
		out, err = orchestrator.AnalyzeOrder(ctx, orders[0])
	default:
		out, err = orchestrator.AnalyzeOrders(ctx, orders)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package config

import (
	"fmt"
	"time"
	// PROJECTION_TIMEZONE must resolve on slim images without a zoneinfo database
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
)

var settingsValidator = validator.New()

// LoadProjectionSettings reads the PROJECTION_* variables on top of the engine defaults.
//
//   - PROJECTION_HORIZON_DAYS, PROJECTION_MIN_WINDOW_DAYS, PROJECTION_AT_RISK_BUFFER_DAYS
//   - PROJECTION_CACHE_TTL_SECONDS, PROJECTION_CACHE_SWEEP_SECONDS
//   - PROJECTION_CONCURRENCY, PROJECTION_STORE_TIMEOUT_MS, PROJECTION_BATCH_DEADLINE_MS
//   - PROJECTION_TIMEZONE
func LoadProjectionSettings() (projection.Settings, error) {
	def := projection.DefaultSettings()

	s := projection.Settings{
		HorizonDays:        utils.IntFromEnv("PROJECTION_HORIZON_DAYS", def.HorizonDays),
		MinWindowDays:      utils.IntFromEnv("PROJECTION_MIN_WINDOW_DAYS", def.MinWindowDays),
		AtRiskBufferDays:   utils.IntFromEnv("PROJECTION_AT_RISK_BUFFER_DAYS", def.AtRiskBufferDays),
		CacheTTL:           time.Duration(utils.IntFromEnv("PROJECTION_CACHE_TTL_SECONDS", int(def.CacheTTL/time.Second))) * time.Second,
		CacheSweepInterval: time.Duration(utils.IntFromEnv("PROJECTION_CACHE_SWEEP_SECONDS", int(def.CacheSweepInterval/time.Second))) * time.Second,
		Concurrency:        utils.IntFromEnv("PROJECTION_CONCURRENCY", def.Concurrency),
		StoreTimeout:       time.Duration(utils.IntFromEnv("PROJECTION_STORE_TIMEOUT_MS", int(def.StoreTimeout/time.Millisecond))) * time.Millisecond,
		BatchDeadline:      time.Duration(utils.IntFromEnv("PROJECTION_BATCH_DEADLINE_MS", int(def.BatchDeadline/time.Millisecond))) * time.Millisecond,
	}

	tz := utils.StringFromEnv("PROJECTION_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return s, fmt.Errorf("PROJECTION_TIMEZONE %q: %w", tz, err)
	}
	s.Location = loc

	if err := settingsValidator.Struct(s); err != nil {
		return s, fmt.Errorf("invalid projection settings: %v", utils.ProcessValidationErrors(err))
	}
	return s, nil
}

package projection

import (
	"runtime"
	"time"
)

const (
	DefaultHorizonDays      = 28
	DefaultMinWindowDays    = 7
	DefaultAtRiskBufferDays = 3
)

// Settings are the engine knobs. config.LoadProjectionSettings fills them from the environment.
type Settings struct {
	HorizonDays        int            `validate:"gte=0,lte=366"`
	MinWindowDays      int            `validate:"gte=1,lte=366"`
	AtRiskBufferDays   int            `validate:"gte=0,lte=366"`
	CacheTTL           time.Duration  `validate:"gt=0"`
	CacheSweepInterval time.Duration  `validate:"gte=0"`
	Concurrency        int            `validate:"gte=1,lte=4096"`
	StoreTimeout       time.Duration  `validate:"gt=0"`
	BatchDeadline      time.Duration  `validate:"gt=0"`
	Location           *time.Location `validate:"required"`
}

func DefaultSettings() Settings {
	return Settings{
		HorizonDays:        DefaultHorizonDays,
		MinWindowDays:      DefaultMinWindowDays,
		AtRiskBufferDays:   DefaultAtRiskBufferDays,
		CacheTTL:           2 * time.Minute,
		CacheSweepInterval: time.Minute,
		Concurrency:        runtime.NumCPU() * 2,
		StoreTimeout:       5 * time.Second,
		BatchDeadline:      time.Minute,
		Location:           time.UTC,
	}
}

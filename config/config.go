// Package config loads this module's environment configuration, following
// the same env.RegisterDefault/env.GetVar shape as the teacher's
// utils/initializer.Initialize.
package config

import (
	"strconv"

	"github.com/alpacahq/gopaca/env"
	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/gberrors"
)

const (
	defaultFinancialsCacheHours = 24
	defaultCoarseMaxConcurrent  = 10
	defaultRootDir              = "./data"
)

// Config holds the resolved runtime configuration for every engine.
type Config struct {
	PolygonAPIKey        string
	FinancialsCacheHours int
	CoarseMaxConcurrent  int
	RootDir              string
}

// Load reads environment configuration, registering defaults for the
// optional keys the way Initialize() does, and returns a
// configuration-missing error (rather than panicking) if the required
// upstream API key is absent, so a caller embedding this module can decide
// how to fail.
func Load() (*Config, error) {
	env.RegisterDefault("POLYGON_FINANCIALS_CACHE_HOURS", strconv.Itoa(defaultFinancialsCacheHours))
	env.RegisterDefault("POLYGON_COARSE_MAX_CONCURRENT", strconv.Itoa(defaultCoarseMaxConcurrent))
	env.RegisterDefault("REFDATA_ROOT_DIR", defaultRootDir)

	apiKey := env.GetVar("POLYGON_API_KEY")
	if apiKey == "" {
		return nil, gberrors.New(gberrors.ConfigurationMissing, "POLYGON_API_KEY is required")
	}

	cacheHours, err := strconv.Atoi(env.GetVar("POLYGON_FINANCIALS_CACHE_HOURS"))
	if err != nil {
		log.Warn("invalid POLYGON_FINANCIALS_CACHE_HOURS, using default", "error", err)
		cacheHours = defaultFinancialsCacheHours
	}

	maxConcurrent, err := strconv.Atoi(env.GetVar("POLYGON_COARSE_MAX_CONCURRENT"))
	if err != nil {
		log.Warn("invalid POLYGON_COARSE_MAX_CONCURRENT, using default", "error", err)
		maxConcurrent = defaultCoarseMaxConcurrent
	}

	return &Config{
		PolygonAPIKey:        apiKey,
		FinancialsCacheHours: cacheHours,
		CoarseMaxConcurrent:  maxConcurrent,
		RootDir:              env.GetVar("REFDATA_ROOT_DIR"),
	}, nil
}

// MustLoad calls Load and fatally exits on configuration-missing, matching
// the fail-fast behavior of the teacher's own env checks in Initialize.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal("refdata configuration invalid", "error", err)
	}
	return cfg
}

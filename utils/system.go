package utils

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
)

// cpuCounts is swapped in tests.
var cpuCounts = cpu.Counts

// OptimalWorkerCount resolves a configured worker count. A positive integer is
// used as is; "auto" (or anything unparsable) derives the count from the
// machine: half the logical cores, kept within [1, 16].
func OptimalWorkerCount(configValue string, fallback int) int {
	configValue = strings.TrimSpace(configValue)
	if configValue == "" {
		return fallback
	}
	if manual, err := strconv.Atoi(configValue); err == nil && manual > 0 {
		return manual
	}

	if !strings.EqualFold(configValue, "auto") {
		log.Warn().Str("value", configValue).Msg("invalid worker count, using auto mode")
	}

	// Logical cores: scraping is I/O bound and hyper-threading helps.
	cores, err := cpuCounts(true)
	if err != nil || cores <= 0 {
		log.Warn().Err(err).Int("fallback", fallback).Msg("could not detect CPU cores")
		return fallback
	}

	optimal := cores / 2
	if optimal < 1 {
		optimal = 1
	}
	if optimal > 16 {
		optimal = 16
	}

	log.Info().Int("cores", cores).Int("workers", optimal).Msg("derived worker count from CPU cores")
	return optimal
}

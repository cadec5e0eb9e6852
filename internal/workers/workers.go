// Package workers sizes and runs bounded worker pools for indexing.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that overrides computed worker counts.
const EnvOverride = "UTSUSHI_INDEX_WORKERS"

// Count returns the number of workers for a task type. It respects container CPU
// limits via GOMAXPROCS.
//
// The multiplier scales the CPU count; indexing is dominated by embedding inference, so
// callers use ForCPU.
//
// The limit caps the worker count; use 0 for no limit. UTSUSHI_INDEX_WORKERS overrides
// the computed value.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns the worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

package queue

import (
	"runtime"

	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
)

// PoolSize resolves session.parallelism_n into a worker count clamped to
// [1, numCPU], defaulting to 1 for inplace mode and 2 for stage mode when
// parallelismN is zero (unset).
func PoolSize(parallelismN int, mode jobstore.SourceHandlingMode) int {
	n := parallelismN
	if n <= 0 {
		if mode == jobstore.ModeInplace {
			n = 1
		} else {
			n = 2
		}
	}
	if n < 1 {
		n = 1
	}
	if max := runtime.NumCPU(); n > max {
		n = max
	}
	return n
}

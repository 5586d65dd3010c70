package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "STOCKLEDGER_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis. The flag is read once.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeFlag.Store(os.Getenv(testModeEnv) == "1")
	})
	return testModeFlag.Load()
}

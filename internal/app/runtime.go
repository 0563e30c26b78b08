package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv switches binaries into a no-side-effect mode used by their smoke tests.
const TestModeEnv = "FREIGHTDESK_TEST_MODE"

var testMode atomic.Pointer[bool]

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	on = err == nil && on
	testMode.Store(&on)
	return on
}

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the other runtime services.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return readTestMode()
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	readTestMode()
}

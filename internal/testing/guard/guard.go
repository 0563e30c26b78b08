// Package guard switches binaries into test mode when blank-imported from a
// test, so main() returns before dialing Postgres or Redis.
package guard

import "os"

func init() {
	if os.Getenv("FREIGHTDESK_TEST_MODE") == "" {
		_ = os.Setenv("FREIGHTDESK_TEST_MODE", "1")
	}
	if os.Getenv("GOTENBERG_URL") == "" {
		_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
	}
}

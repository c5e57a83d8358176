package testutil

import (
	"os"
	"testing"
)

// SkipIfNoDevMem skips the test when /dev/mem is unavailable, which is
// the normal case everywhere but the target board.
func SkipIfNoDevMem(t *testing.T) {
	t.Helper()

	f, err := os.OpenFile("/dev/mem", os.O_RDWR, 0)
	if err != nil {
		t.Skip("No /dev/mem access available")
	}
	f.Close()
}

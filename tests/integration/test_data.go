package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

var seq atomic.Int64

// TestIdentifier generates a unique login identifier
func TestIdentifier(suffix string) string {
	return fmt.Sprintf("test-%d-%d-%s@example.com", time.Now().Unix(), seq.Add(1), suffix)
}

// TestIP generates a unique documentation-range IPv4 address
func TestIP() string {
	n := seq.Add(1)
	return fmt.Sprintf("198.51.%d.%d", (n/250)%250, n%250+1)
}

package services

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Monitor is the SystemMonitor capability for the running process.
type Monitor struct {
	name    string
	started time.Time
	now     func() time.Time
}

func NewMonitor(name string) *Monitor {
	return &Monitor{name: name, started: time.Now(), now: time.Now}
}

func (m *Monitor) Uptime() time.Duration {
	return m.now().Sub(m.started)
}

func (m *Monitor) StatusText() string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lines := []string{
		"Process: " + m.name,
		fmt.Sprintf("Memory: %.1fMB heap, %.1fMB sys", float64(mem.HeapAlloc)/(1<<20), float64(mem.Sys)/(1<<20)),
		fmt.Sprintf("Goroutines: %d", runtime.NumGoroutine()),
		fmt.Sprintf("Go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		"Runtime: " + FormatUptime(m.Uptime()),
	}
	return strings.Join(lines, "\n")
}

// FormatUptime renders d as days, hours and minutes, omitting empty
// leading units. Minutes are always shown when nothing else is.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

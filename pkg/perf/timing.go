// Package perf provides opt-in frame timing. Set ARCHON_PERF=1 and each
// timed section appends one line to /tmp/archon-perf.log.
package perf

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	enabled  = os.Getenv("ARCHON_PERF") == "1"
	logFile  *os.File
	logMutex sync.Mutex
)

func init() {
	if !enabled {
		return
	}
	var err error
	logFile, err = os.OpenFile("/tmp/archon-perf.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		enabled = false
	}
}

// Timer tracks elapsed time for a named section.
type Timer struct {
	name  string
	start time.Time
}

// Start begins timing a section; pair with Stop, usually deferred.
func Start(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop ends timing and logs the elapsed duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if enabled && logFile != nil {
		logMutex.Lock()
		fmt.Fprintf(logFile, "%s: %s: %v\n", time.Now().Format("15:04:05.000"), t.name, elapsed)
		logMutex.Unlock()
	}
	return elapsed
}

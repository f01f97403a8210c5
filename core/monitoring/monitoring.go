// Package monitoring is the process wide error reporting facade. Components
// call CaptureException with tags such as module and device_id; the backend
// is installed once at startup with Init.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil monitor restores the
// no-op default.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags. Nil errors are
// ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover captures a panic, flushes the monitor and panics again. It must be
// deferred directly.
func Recover() {
	if r := recover(); r != nil {
		m := get()
		m.CapturePanic(r, nil)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// RecoverWith captures a panic with tags and swallows it, reporting it
// through errp when non nil. It must be deferred directly.
func RecoverWith(tags map[string]string, errp *error) {
	if r := recover(); r != nil {
		get().CapturePanic(r, tags)
		if errp != nil {
			*errp = fmt.Errorf("panic: %v", r)
		}
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}

package crawler

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
)

// Pressure indicates memory pressure severity.
type Pressure int

const (
	PressureNormal   Pressure = iota // below 75% of the limit
	PressureWarning                  // 75-90% of the limit
	PressureCritical                 // above 90% of the limit
)

func (p Pressure) String() string {
	switch p {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryWatcher compares heap usage with a soft limit so the crawler can
// stop growing its frontier before the process runs out of memory.
type MemoryWatcher struct {
	limitBytes int64
	prevLimit  int64
	heapAlloc  func() uint64

	mu        sync.Mutex
	lastLevel Pressure
	onChange  func(Pressure)
}

// NewMemoryWatcher installs limitMB as the runtime's soft memory limit.
// Close restores the previous limit.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	limitBytes := limitMB * 1024 * 1024
	return &MemoryWatcher{
		limitBytes: limitBytes,
		prevLimit:  debug.SetMemoryLimit(limitBytes),
		heapAlloc:  readHeapAlloc,
	}
}

func readHeapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// OnChange registers fn to be called whenever Check observes a new level.
func (m *MemoryWatcher) OnChange(fn func(Pressure)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Check returns the heap usage as a percentage of the limit and its level.
func (m *MemoryWatcher) Check() (usedPercent float64, level Pressure) {
	if m == nil || m.limitBytes <= 0 {
		return 0, PressureNormal
	}

	usedPercent = float64(m.heapAlloc()) / float64(m.limitBytes) * 100
	switch {
	case usedPercent >= 90:
		level = PressureCritical
	case usedPercent >= 75:
		level = PressureWarning
	default:
		level = PressureNormal
	}

	m.mu.Lock()
	changed := level != m.lastLevel
	m.lastLevel = level
	fn := m.onChange
	m.mu.Unlock()

	if changed && fn != nil {
		fn(level)
	}
	return usedPercent, level
}

// Close restores the soft memory limit that was active before the watcher.
func (m *MemoryWatcher) Close() {
	if m == nil {
		return
	}
	if m.prevLimit <= 0 {
		m.prevLimit = math.MaxInt64
	}
	debug.SetMemoryLimit(m.prevLimit)
}

package metrics

import (
	"runtime"
	"sync"
	"time"
)

// Metrics aggregates controller telemetry for the HTTP API.
type Metrics struct {
	// Motion metrics
	MovementsStarted int64 `json:"movements_started"`
	Stalls           int64 `json:"stalls"`
	EndpointCals     int64 `json:"endpoint_calibrations"`
	DirectionErrors  int64 `json:"direction_errors"`

	// Command metrics
	CommandsProcessed int64 `json:"commands_processed"`
	UnknownCommands   int64 `json:"unknown_commands"`

	// System metrics
	Uptime         int64  `json:"uptime_seconds"`
	MemoryUsed     uint64 `json:"memory_used_bytes"`
	GoroutineCount int    `json:"goroutine_count"`

	mu        sync.RWMutex
	startTime time.Time
}

// NewMetrics creates a Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// IncrementMovements counts an energize
func (m *Metrics) IncrementMovements() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MovementsStarted++
}

// IncrementEndpointCals counts a completed endpoint calibration
func (m *Metrics) IncrementEndpointCals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndpointCals++
}

// SetMotionCounters mirrors the controller's cumulative counters
func (m *Metrics) SetMotionCounters(stalls, dirErrors int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stalls = stalls
	m.DirectionErrors = dirErrors
}

// SetCommandCounters mirrors the protocol processor's counters
func (m *Metrics) SetCommandCounters(processed, unknown int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommandsProcessed = processed
	m.UnknownCommands = unknown
}

// Snapshot returns a copy with system fields refreshed
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Metrics{
		MovementsStarted:  m.MovementsStarted,
		Stalls:            m.Stalls,
		EndpointCals:      m.EndpointCals,
		DirectionErrors:   m.DirectionErrors,
		CommandsProcessed: m.CommandsProcessed,
		UnknownCommands:   m.UnknownCommands,
		Uptime:            int64(time.Since(m.startTime).Seconds()),
		MemoryUsed:        mem.Alloc,
		GoroutineCount:    runtime.NumGoroutine(),
	}
}

package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe reports the current health of one dependency.
type Probe func(ctx context.Context) Status

// CheckFunc adapts an error-returning check into a Probe.
func CheckFunc(name string, check func(ctx context.Context) error) Probe {
	return func(ctx context.Context) Status {
		return FromError(name, check(ctx))
	}
}

type probeState struct {
	probe      Probe
	registered time.Time
	errors     int
}

// Monitor tracks the last known status of every registered dependency.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]*probeState
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]*probeState),
	}
}

// Register adds a probe run by Check. Registering a name again replaces it.
func (m *Monitor) Register(name string, probe Probe) {
	if probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = &probeState{probe: probe, registered: time.Now()}
}

// Update records a status pushed by the dependency itself
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy records a healthy status
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records an unhealthy status
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded records a degraded status
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get returns the last status recorded for name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Check runs every probe, records the results and returns the aggregate.
// Probes run outside the lock, one at a time.
func (m *Monitor) Check(ctx context.Context, systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		m.mu.RLock()
		state, ok := m.probes[name]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		status := state.probe(ctx)
		now := time.Now()

		m.mu.Lock()
		if !status.IsHealthy() {
			state.errors++
		}
		status = status.WithMetrics(&Metrics{
			Uptime:       now.Sub(state.registered),
			ErrorCount:   state.errors,
			LastActivity: now,
		})
		m.mu.Unlock()

		m.Update(name, status)
	}

	return m.AggregateHealth(systemName)
}

// AggregateHealth aggregates the recorded statuses, ordered by name
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})
	return Aggregate(systemName, subStatuses)
}

// Count returns the number of recorded statuses
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

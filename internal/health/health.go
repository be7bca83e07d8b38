// Component health tracking for the simulator and its sinks
package health

import (
	"sort"
	"sync"
	"time"
)

// Status is the health level of a component.
type Status string

// Health levels.
const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusUnknown  Status = "unknown"
)

// Component is the health record of a single component.
type Component struct {
	Name           string            `json:"name"`
	Status         Status            `json:"status"`
	LastUpdated    time.Time         `json:"last_updated"`
	ErrorCount     int               `json:"error_count"`
	WarningCount   int               `json:"warning_count"`
	LastError      string            `json:"last_error,omitempty"`
	LastErrorTime  *time.Time        `json:"last_error_time,omitempty"`
	FallbackActive bool              `json:"fallback_active"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Counts tallies components per status.
type Counts struct {
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// SystemStatus is the aggregate view returned by Monitor.System.
type SystemStatus struct {
	Overall    Status      `json:"overall_status"`
	Timestamp  time.Time   `json:"timestamp"`
	Counts     Counts      `json:"component_counts"`
	Components []Component `json:"components"`
}

// Monitor tracks the health of named components. It is safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	components map[string]*Component
	now        func() time.Time
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{components: make(map[string]*Component), now: time.Now}
}

// Register adds (or resets) a component as healthy.
func (m *Monitor) Register(name string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(name, metadata)
}

func (m *Monitor) register(name string, metadata map[string]string) *Component {
	c := &Component{
		Name:        name,
		Status:      StatusHealthy,
		LastUpdated: m.now().UTC(),
		Metadata:    copyMeta(metadata),
	}
	m.components[name] = c
	return c
}

func (m *Monitor) lookup(name string, metadata map[string]string) *Component {
	c, ok := m.components[name]
	if !ok {
		c = m.register(name, metadata)
		return c
	}
	if len(metadata) > 0 {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// MarkHealthy sets name healthy and clears any active fallback.
func (m *Monitor) MarkHealthy(name string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(name, metadata)
	c.Status = StatusHealthy
	c.LastUpdated = m.now().UTC()
	c.FallbackActive = false
}

// MarkDegraded sets name degraded and records err as a warning.
func (m *Monitor) MarkDegraded(name string, err error, fallbackActive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(name, nil)
	now := m.now().UTC()
	c.Status = StatusDegraded
	c.WarningCount++
	c.LastError = errString(err)
	c.LastErrorTime = &now
	c.LastUpdated = now
	c.FallbackActive = fallbackActive
}

// MarkFailed sets name failed and records err.
func (m *Monitor) MarkFailed(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(name, nil)
	now := m.now().UTC()
	c.Status = StatusFailed
	c.ErrorCount++
	c.LastError = errString(err)
	c.LastErrorTime = &now
	c.LastUpdated = now
}

// Component returns the record for name. Unregistered components are
// registered on the fly with unknown status.
func (m *Monitor) Component(name string) Component {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.components[name]
	if !ok {
		c = &Component{Name: name, Status: StatusUnknown, LastUpdated: m.now().UTC()}
		m.components[name] = c
	}
	return clone(c)
}

// All returns every component sorted by name.
func (m *Monitor) All() []Component {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all()
}

func (m *Monitor) all() []Component {
	out := make([]Component, 0, len(m.components))
	for _, c := range m.components {
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// System aggregates component health. A failed or degraded component
// degrades the whole system; an empty monitor reports unknown.
func (m *Monitor) System() SystemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := SystemStatus{Timestamp: m.now().UTC(), Components: m.all()}
	for _, c := range st.Components {
		switch c.Status {
		case StatusHealthy:
			st.Counts.Healthy++
		case StatusDegraded:
			st.Counts.Degraded++
		case StatusFailed:
			st.Counts.Failed++
		}
	}
	st.Counts.Total = len(st.Components)
	switch {
	case st.Counts.Total == 0:
		st.Overall = StatusUnknown
	case st.Counts.Failed > 0 || st.Counts.Degraded > 0:
		st.Overall = StatusDegraded
	default:
		st.Overall = StatusHealthy
	}
	return st
}

// Healthy reports whether the aggregate status is healthy.
func (m *Monitor) Healthy() bool {
	return m.System().Overall == StatusHealthy
}

func clone(c *Component) Component {
	out := *c
	out.Metadata = copyMeta(c.Metadata)
	if c.LastErrorTime != nil {
		t := *c.LastErrorTime
		out.LastErrorTime = &t
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package scheduler

import (
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"
)

// Health components reported by the control loop.
const (
	ComponentRules    = "rules"
	ComponentTimeline = "timeline"
	ComponentStream   = "stream"
	ComponentEnforcer = "enforcer"
)

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy     bool      `json:"healthy"`
	LastCheck   time.Time `json:"last_check"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   error     `json:"-"`
	Message     string    `json:"message"`
}

// Health tracks the health of the loop's components.
type Health struct {
	mu         sync.RWMutex
	components map[string]HealthStatus
	now        func() time.Time
}

// NewHealth creates a new health tracker.
func NewHealth() *Health {
	return &Health{
		components: make(map[string]HealthStatus),
		now:        time.Now,
	}
}

// SetHealthy marks a component as healthy.
func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.components[component] = HealthStatus{
		Healthy:     true,
		LastCheck:   now,
		LastSuccess: now,
		Message:     message,
	}
}

// SetUnhealthy marks a component as unhealthy. The last success time is
// kept.
func (h *Health) SetUnhealthy(component string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.components[component]
	status.Healthy = false
	status.LastCheck = h.now()
	status.LastError = err
	status.Message = err.Error()
	h.components[component] = status
}

// GetStatus returns a copy of a component's status, or nil if it never
// reported.
func (h *Health) GetStatus(component string) *HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, ok := h.components[component]
	if !ok {
		return nil
	}
	return &status
}

// GetAllStatuses returns a copy of all component statuses.
func (h *Health) GetAllStatuses() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return maps.Clone(h.components)
}

// IsOverallHealthy returns true if all components are healthy.
func (h *Health) IsOverallHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, status := range h.components {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// ServeHTTP reports the component statuses as JSON, with 503 when any
// component is unhealthy.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	healthy := h.IsOverallHealthy()

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(struct {
		Healthy    bool                    `json:"healthy"`
		Components map[string]HealthStatus `json:"components"`
	}{
		Healthy:    healthy,
		Components: h.GetAllStatuses(),
	})
}

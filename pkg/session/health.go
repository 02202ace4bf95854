package session

import "time"

// HealthStatus summarizes device reachability.
type HealthStatus uint8

const (
	HealthUnknown HealthStatus = iota
	HealthOK
	HealthDegraded
	HealthDisconnected
)

// String returns the status name.
func (h HealthStatus) String() string {
	switch h {
	case HealthUnknown:
		return "UNKNOWN"
	case HealthOK:
		return "OK"
	case HealthDegraded:
		return "DEGRADED"
	case HealthDisconnected:
		return "DISCONNECTED"
	default:
		return "INVALID"
	}
}

// HealthSnapshot is a point-in-time view of a Session.
type HealthSnapshot struct {
	Status              HealthStatus
	ConsecutiveFailures int
	LastError           string
	LastSuccess         time.Time
	Reconnects          int
	Model               string
}

// health tracks consecutive failures. Guarded by Session.mu.
type health struct {
	threshold   int
	status      HealthStatus
	failures    int
	lastError   string
	lastSuccess time.Time
	reconnects  int
}

func (h *health) success() {
	h.status = HealthOK
	h.failures = 0
	h.lastError = ""
	h.lastSuccess = time.Now()
}

func (h *health) failure(err error) {
	h.failures++
	h.lastError = err.Error()
	if h.failures >= h.threshold {
		h.status = HealthDisconnected
	} else {
		h.status = HealthDegraded
	}
}

func (h *health) lost(err error) {
	h.failure(err)
	h.status = HealthDisconnected
}

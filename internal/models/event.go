package models

import "time"

type EventType string

const (
	EventTelemetry     EventType = "telemetry"
	EventManualCommand EventType = "manual-command"
	EventSystem        EventType = "system"
	EventAutoBalance   EventType = "auto-balance"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// SeverityForVUF maps a telemetry reading onto an event severity.
func SeverityForVUF(vuf float64) Severity {
	switch {
	case vuf < 2:
		return SeverityInfo
	case vuf < 3:
		return SeverityWarn
	default:
		return SeverityCritical
	}
}

// Details carries flat key/value context for an event. Values are
// strings, numbers or booleans only.
type Details map[string]any

// Event is an entry of the observability log.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	NodeID    string    `json:"nodeId"`
	Severity  Severity  `json:"severity"`
	Summary   string    `json:"summary"`
	Details   Details   `json:"details,omitempty"`
}

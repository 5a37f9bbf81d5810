package models

// NodeStatus is the health classification of a feeder node.
type NodeStatus string

const (
	StatusOperational NodeStatus = "operational"
	StatusDegraded    NodeStatus = "degraded"
	StatusCritical    NodeStatus = "critical"
)

// StatusForVUF classifies a voltage-unbalance factor.
func StatusForVUF(vuf float64) NodeStatus {
	switch {
	case vuf >= 3:
		return StatusCritical
	case vuf >= 1.5:
		return StatusDegraded
	default:
		return StatusOperational
	}
}

// NodeMode is who is driving the node's balancing.
type NodeMode string

const (
	ModeAuto   NodeMode = "auto"
	ModeManual NodeMode = "manual"
)

// Toggle returns the opposite mode.
func (m NodeMode) Toggle() NodeMode {
	if m == ModeAuto {
		return ModeManual
	}
	return ModeAuto
}

// Node is the core domain object representing a simulated feeder node.
// Shared between the registry, the generator and the API layer.
type Node struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Lat           float64         `json:"lat"`
	Lon           float64         `json:"lon"`
	Status        NodeStatus      `json:"status"`
	VUF           float64         `json:"vuf"`
	Feeder        string          `json:"feeder"`
	District      string          `json:"district"`
	Mode          NodeMode        `json:"mode"`
	LastTelemetry *TelemetryPoint `json:"last_telemetry,omitempty"`
}

// Clone returns a copy that shares no memory with n.
func (n Node) Clone() Node {
	if n.LastTelemetry != nil {
		lt := *n.LastTelemetry
		n.LastTelemetry = &lt
	}
	return n
}

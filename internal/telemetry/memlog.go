// Package telemetry stores node readings: a bounded in-memory log for all
// nodes, a durable SQL table for the real node, and a synthetic series
// generator for everything else.
package telemetry

import (
	"sync"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// DefaultRetention is the number of points kept per node.
const DefaultRetention = 5000

// MemLog keeps the most recent points of every node.
type MemLog struct {
	mu        sync.RWMutex
	points    map[string][]models.TelemetryPoint
	retention int
}

func NewMemLog(retention int) *MemLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemLog{points: make(map[string][]models.TelemetryPoint), retention: retention}
}

// Append adds pt to the node's log, dropping the oldest points past the
// retention bound.
func (m *MemLog) Append(nodeID string, pt models.TelemetryPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := append(m.points[nodeID], pt)
	if over := len(pts) - m.retention; over > 0 {
		// copy so the dropped prefix can be collected
		pts = append(make([]models.TelemetryPoint, 0, m.retention), pts[over:]...)
	}
	m.points[nodeID] = pts
}

// List returns the last limit points of the node in chronological order.
// limit <= 0 returns everything retained.
func (m *MemLog) List(nodeID string, limit int) []models.TelemetryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[nodeID]
	if limit > 0 && limit < len(pts) {
		pts = pts[len(pts)-limit:]
	}
	out := make([]models.TelemetryPoint, len(pts))
	copy(out, pts)
	return out
}

func (m *MemLog) Len(nodeID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points[nodeID])
}

package server

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// Reading is a telemetry sample reported by a node.
type Reading struct {
	VUF            float64 `json:"vuf"`
	VA             int     `json:"v_a"`
	VB             int     `json:"v_b"`
	VC             int     `json:"v_c"`
	NeutralCurrent float64 `json:"neutral_current"`
}

// Ack acknowledges an ingested reading.
type Ack struct {
	Status      string `json:"status"`
	UpdatedNode string `json:"updated_node"`
}

// Ingest records a reading stamped with the server clock. The real node's
// readings are persisted; every reading lands in the in-memory log and, if
// the node is known, becomes its last telemetry.
func (s *Server) Ingest(ctx context.Context, nodeID string, r Reading) (Ack, error) {
	ctx, span := tracer.Start(ctx, "Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("node.id", nodeID))

	if nodeID == "" {
		return Ack{}, fmt.Errorf("%w: nodeId required", ErrValidation)
	}
	pt := models.TelemetryPoint{
		Timestamp:      s.timestamp(),
		VUF:            math.Max(0, r.VUF),
		VA:             r.VA,
		VB:             r.VB,
		VC:             r.VC,
		NeutralCurrent: math.Max(0, r.NeutralCurrent),
	}

	if nodeID == s.realNodeID {
		if err := s.durable.Insert(ctx, nodeID, pt); err != nil {
			s.log.Error("persist telemetry failed", zap.String("node_id", nodeID), zap.Error(err))
			return Ack{}, fmt.Errorf("persist telemetry: %w", err)
		}
	}
	s.telemetry.Append(nodeID, pt)

	s.registry.Update(nodeID, func(n *models.Node) {
		last := pt
		n.LastTelemetry = &last
		n.VUF = pt.VUF
	})

	sev := models.SeverityForVUF(pt.VUF)
	s.emit(models.EventTelemetry, nodeID, sev,
		fmt.Sprintf("Telemetry update for %s: VUF=%v", nodeID, pt.VUF),
		models.Details{
			"vuf":             pt.VUF,
			"v_a":             pt.VA,
			"v_b":             pt.VB,
			"v_c":             pt.VC,
			"neutral_current": pt.NeutralCurrent,
		},
	)
	s.metrics.ObserveTelemetry(string(sev))
	return Ack{Status: "ok", UpdatedNode: nodeID}, nil
}

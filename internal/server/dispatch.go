package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/models"
	natsclient "github.com/devghori1264/feederbalancer/internal/nats"
)

// Known command verbs, after NormalizeCommand.
const (
	CmdSwitchMode   = "switch-mode"
	CmdQuickBalance = "quick-balance"
	CmdRestart      = "restart"
)

const defaultInitiator = "WebUI"

// DispatchRequest is an operator command addressed to one or more nodes.
type DispatchRequest struct {
	NodeIDs     []string       `json:"nodeIds"`
	Command     string         `json:"command"`
	Params      map[string]any `json:"params"`
	InitiatedBy string         `json:"initiatedBy"`
}

// NormalizeCommand maps "Quick_Balance" style names onto their verb.
func NormalizeCommand(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

// Dispatch validates and records a command, applies its simulated effect
// to every known target and relays it to every target. A missing node or a
// failed relay for one target never stops the others.
func (s *Server) Dispatch(ctx context.Context, req DispatchRequest) (*models.Command, error) {
	ctx, span := tracer.Start(ctx, "Dispatch")
	defer span.End()

	if len(req.NodeIDs) == 0 || req.Command == "" {
		return nil, fmt.Errorf("%w: nodeIds (list) and command required", ErrValidation)
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = defaultInitiator
	}

	cmd := &models.Command{
		ID:          newID("CMD-"),
		Timestamp:   s.timestamp(),
		NodeIDs:     append([]string(nil), req.NodeIDs...),
		Command:     req.Command,
		Params:      req.Params,
		InitiatedBy: req.InitiatedBy,
		Status:      models.CommandQueued,
	}
	span.SetAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.name", cmd.Command),
		attribute.Int("command.targets", len(cmd.NodeIDs)),
	)
	if err := s.commands.PutCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("store command: %w", err)
	}

	// attributed to the first target only, even for fleet-wide commands
	s.emit(models.EventManualCommand, cmd.NodeIDs[0], models.SeverityInfo,
		fmt.Sprintf("Command queued: %s -> %d node(s)", cmd.Command, len(cmd.NodeIDs)),
		models.Details{"cmdId": cmd.ID, "params": encodeParams(cmd.Params)},
	)

	verb := NormalizeCommand(cmd.Command)
	s.metrics.ObserveCommand(verb)
	s.log.Info("command queued",
		zap.String("cmd_id", cmd.ID),
		zap.String("command", cmd.Command),
		zap.Strings("targets", cmd.NodeIDs),
		zap.String("initiated_by", cmd.InitiatedBy),
	)

	for _, nodeID := range cmd.NodeIDs {
		s.fanout(ctx, cmd, verb, nodeID)
	}
	return cmd, nil
}

func (s *Server) fanout(ctx context.Context, cmd *models.Command, verb, nodeID string) {
	_ = s.acquireOpLock(nodeID)
	defer s.releaseOpLock(nodeID)

	s.applyEffect(verb, nodeID)

	msg := models.RelayMessage{
		CommandID:   cmd.ID,
		Command:     cmd.Command,
		Params:      cmd.Params,
		Timestamp:   s.timestamp(),
		InitiatedBy: cmd.InitiatedBy,
		Target:      nodeID,
	}
	subject := natsclient.CommandSubject(s.subjectPrefix, nodeID)
	published := s.publish(ctx, subject, msg)

	sev, outcome := models.SeverityInfo, "succeeded"
	if !published {
		sev, outcome = models.SeverityWarn, "failed"
	}
	s.emit(models.EventSystem, nodeID, sev,
		fmt.Sprintf("Relay publish %s for %s", outcome, nodeID),
		models.Details{"cmdId": cmd.ID, "subject": subject},
	)
}

// applyEffect simulates the command on the node. Unknown nodes and
// unknown verbs are left untouched.
func (s *Server) applyEffect(verb, nodeID string) {
	switch verb {
	case CmdSwitchMode:
		n, ok := s.registry.Update(nodeID, func(n *models.Node) {
			n.Mode = n.Mode.Toggle()
		})
		if ok {
			s.emit(models.EventSystem, nodeID, models.SeverityInfo,
				fmt.Sprintf("Mode toggled to %s (simulated)", n.Mode), nil)
		}

	case CmdQuickBalance:
		delta := round2(s.uniform(0.2, 1.0))
		now := s.timestamp()
		n, ok := s.registry.Update(nodeID, func(n *models.Node) {
			n.VUF = math.Max(0, round2(n.VUF-delta))
			if n.LastTelemetry == nil {
				n.LastTelemetry = &models.TelemetryPoint{}
			}
			n.LastTelemetry.VUF = n.VUF
			n.LastTelemetry.Timestamp = now
		})
		if ok {
			s.emit(models.EventAutoBalance, nodeID, models.SeverityInfo,
				"Quick balance applied (simulated)",
				models.Details{"delta": delta, "vuf": n.VUF})
		}

	case CmdRestart:
		_, ok := s.registry.Update(nodeID, func(n *models.Node) {
			_ = n.Status // previous status is not used for branching
			n.Status = models.StatusOperational
		})
		if ok {
			s.emit(models.EventSystem, nodeID, models.SeverityInfo, "Node restarted (simulated)", nil)
		}
	}
}

// publish reports whether the relay accepted msg. Disabled relays and
// publish errors are both a plain false.
func (s *Server) publish(ctx context.Context, subject string, msg models.RelayMessage) bool {
	ok := false
	defer func() { s.metrics.ObserveRelay(ok) }()

	if s.relay == nil {
		s.log.Debug("relay disabled", zap.String("subject", subject))
		return false
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("relay payload encode failed", zap.String("subject", subject), zap.Error(err))
		return false
	}
	if err := s.relay.Publish(ctx, subject, payload); err != nil {
		s.log.Warn("relay publish failed", zap.String("subject", subject), zap.Error(err))
		return false
	}
	ok = true
	return true
}

// encodeParams flattens params into a JSON string so event details stay
// primitive.
func encodeParams(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/devghori1264/feederbalancer/internal/models"
	"github.com/devghori1264/feederbalancer/internal/storage"
	"github.com/devghori1264/feederbalancer/internal/telemetry"
)

const (
	DefaultTelemetryLimit = 500
	DefaultEventLimit     = 200
	DefaultDebugLimit     = 50

	defaultWindow = time.Hour
	// MaxSyntheticPoints bounds a single synthetic series.
	MaxSyntheticPoints = 100_000
)

// TelemetryQuery selects a node's telemetry. Empty From/To fall back to
// defaults; timestamps are ISO-8601, a missing zone means UTC.
type TelemetryQuery struct {
	From  string
	To    string
	Step  time.Duration
	Limit int
}

func (s *Server) ListNodes() []models.Node {
	return s.registry.List()
}

func (s *Server) GetNode(id string) (models.Node, error) {
	n, ok := s.registry.Get(id)
	if !ok {
		return models.Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return n, nil
}

// NodeTelemetry serves durable history for the real node and a synthetic
// series for every other known node.
func (s *Server) NodeTelemetry(ctx context.Context, nodeID string, q TelemetryQuery) ([]models.TelemetryPoint, error) {
	ctx, span := tracer.Start(ctx, "NodeTelemetry")
	defer span.End()
	span.SetAttributes(attribute.String("node.id", nodeID))

	if nodeID == s.realNodeID {
		return s.durableRange(ctx, nodeID, q)
	}

	node, err := s.GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	to := s.timestamp()
	if q.To != "" {
		if to, err = parseTime(q.To); err != nil {
			return nil, err
		}
	}
	from := to.Add(-defaultWindow)
	if q.From != "" {
		if from, err = parseTime(q.From); err != nil {
			return nil, err
		}
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}
	if telemetry.Count(from, to, q.Step) > MaxSyntheticPoints {
		return nil, fmt.Errorf("%w: more than %d points requested", ErrInvalidRange, MaxSyntheticPoints)
	}

	pts, err := s.synth.Generate(node.LastTelemetry, from, to, q.Step)
	if errors.Is(err, telemetry.ErrInvalidRange) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return pts, err
}

func (s *Server) durableRange(ctx context.Context, nodeID string, q TelemetryQuery) ([]models.TelemetryPoint, error) {
	var from, to *time.Time
	if q.From != "" {
		t, err := parseTime(q.From)
		if err != nil {
			return nil, err
		}
		from = &t
	}
	if q.To != "" {
		t, err := parseTime(q.To)
		if err != nil {
			return nil, err
		}
		to = &t
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultTelemetryLimit
	}
	return s.durable.Range(ctx, nodeID, from, to, limit)
}

// RecentTelemetry returns the newest points of the in-memory log in
// chronological order.
func (s *Server) RecentTelemetry(nodeID string, limit int) []models.TelemetryPoint {
	if limit <= 0 {
		limit = DefaultTelemetryLimit
	}
	return s.telemetry.List(nodeID, limit)
}

// DurableTelemetry lists the newest persisted rows across nodes.
func (s *Server) DurableTelemetry(ctx context.Context, limit int) ([]telemetry.Row, error) {
	if limit <= 0 {
		limit = DefaultDebugLimit
	}
	return s.durable.Recent(ctx, limit)
}

// ListEvents returns the newest events, optionally for one node.
func (s *Server) ListEvents(limit int, nodeID string) []models.Event {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return s.events.List(limit, nodeID)
}

func (s *Server) GetCommand(ctx context.Context, id string) (*models.Command, error) {
	c, err := s.commands.GetCommand(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: command %s", ErrNotFound, id)
	}
	return c, err
}

// ListCommands returns every recorded command, oldest first.
func (s *Server) ListCommands(ctx context.Context) ([]*models.Command, error) {
	return s.commands.ListCommands(ctx)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid from/to datetime %q", ErrInvalidRange, v)
}

package server

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/events"
	"github.com/devghori1264/feederbalancer/internal/metrics"
	"github.com/devghori1264/feederbalancer/internal/models"
	natsclient "github.com/devghori1264/feederbalancer/internal/nats"
	"github.com/devghori1264/feederbalancer/internal/registry"
	"github.com/devghori1264/feederbalancer/internal/storage"
	"github.com/devghori1264/feederbalancer/internal/telemetry"
)

var tracer = otel.Tracer("github.com/devghori1264/feederbalancer/internal/server")

// Relay forwards a payload to a subject. A nil Relay means relaying is
// disabled, which is reported exactly like a failed publish.
type Relay interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// DurableStore persists the real node's telemetry.
type DurableStore interface {
	Insert(ctx context.Context, nodeID string, pt models.TelemetryPoint) error
	Range(ctx context.Context, nodeID string, from, to *time.Time, limit int) ([]models.TelemetryPoint, error)
	Recent(ctx context.Context, limit int) ([]telemetry.Row, error)
}

// Deps wires the stores and collaborators of a Server. Registry, Events,
// Commands, Telemetry and Durable are required.
type Deps struct {
	Registry  *registry.Registry
	Events    *events.Log
	Commands  storage.CommandStore
	Telemetry *telemetry.MemLog
	Durable   DurableStore
	Relay     Relay
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	RealNodeID    string
	SubjectPrefix string

	// Now and Rand default to the wall clock and a time-seeded source.
	Now  func() time.Time
	Rand *rand.Rand
}

// Server owns the node registry and the stores, applies command effects
// and records every observable change in the event log.
type Server struct {
	registry  *registry.Registry
	events    *events.Log
	commands  storage.CommandStore
	telemetry *telemetry.MemLog
	durable   DurableStore
	synth     *telemetry.Synthesizer
	relay     Relay
	metrics   *metrics.Metrics
	log       *zap.Logger

	realNodeID    string
	subjectPrefix string
	now           func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	// operations mutex per node id
	opMu sync.Map
}

// New creates a new server instance.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		d.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if d.SubjectPrefix == "" {
		d.SubjectPrefix = natsclient.DefaultSubjectPrefix
	}
	// the synthesizer gets its own stream so series do not perturb command effects
	synthRand := rand.New(rand.NewPCG(d.Rand.Uint64(), d.Rand.Uint64()))
	return &Server{
		registry:      d.Registry,
		events:        d.Events,
		commands:      d.Commands,
		telemetry:     d.Telemetry,
		durable:       d.Durable,
		synth:         telemetry.NewSynthesizer(synthRand),
		relay:         d.Relay,
		metrics:       d.Metrics,
		log:           d.Logger,
		realNodeID:    d.RealNodeID,
		subjectPrefix: d.SubjectPrefix,
		now:           d.Now,
		rnd:           d.Rand,
	}
}

// Events exposes the event log for live subscriptions.
func (s *Server) Events() *events.Log {
	return s.events
}

// RealNodeID is the node whose telemetry is persisted.
func (s *Server) RealNodeID() string {
	return s.realNodeID
}

func (s *Server) timestamp() time.Time {
	return s.now().UTC()
}

func newID(prefix string) string {
	return prefix + uuid.Must(uuid.NewV7()).String()
}

// emit appends an event to the log.
func (s *Server) emit(typ models.EventType, nodeID string, sev models.Severity, summary string, details models.Details) models.Event {
	ev := models.Event{
		ID:        newID("EV-"),
		Timestamp: s.timestamp(),
		Type:      typ,
		NodeID:    nodeID,
		Severity:  sev,
		Summary:   summary,
		Details:   details,
	}
	s.events.Push(ev)
	s.metrics.ObserveEvent(string(typ), string(sev))
	return ev
}

func (s *Server) uniform(lo, hi float64) float64 {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return lo + (hi-lo)*s.rnd.Float64()
}

// acquireOpLock ensures only one command fanout per node at a time.
func (s *Server) acquireOpLock(id string) *sync.Mutex {
	v, _ := s.opMu.LoadOrStore(id, &sync.Mutex{})
	mtx := v.(*sync.Mutex)
	mtx.Lock()
	return mtx
}

// releaseOpLock releases the op lock.
func (s *Server) releaseOpLock(id string) {
	v, ok := s.opMu.Load(id)
	if !ok {
		return
	}
	mtx := v.(*sync.Mutex)
	mtx.Unlock()
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devghori1264/feederbalancer/internal/events"
	"github.com/devghori1264/feederbalancer/internal/metrics"
	"github.com/devghori1264/feederbalancer/internal/models"
	"github.com/devghori1264/feederbalancer/internal/registry"
	"github.com/devghori1264/feederbalancer/internal/server"
	"github.com/devghori1264/feederbalancer/internal/storage"
	"github.com/devghori1264/feederbalancer/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	durable, err := telemetry.Open(telemetry.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })

	return server.New(server.Deps{
		Registry: registry.New([]models.Node{
			{ID: "ND-001", Name: "Kannur Node 1", Mode: models.ModeAuto, Status: models.StatusOperational, VUF: 0.8},
			{ID: "ND-002", Name: "Kannur Node 2", Mode: models.ModeManual, Status: models.StatusDegraded, VUF: 2.1},
		}),
		Events:     events.NewLog(0),
		Commands:   storage.NewMemoryStore(),
		Telemetry:  telemetry.NewMemLog(0),
		Durable:    durable,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		RealNodeID: "ND-001",
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndRoot(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)

	rec := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)
	rec := do(t, r, http.MethodOptions, "/api/commands", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestNodes(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)

	rec := do(t, r, http.MethodGet, "/api/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int           `json:"count"`
		Nodes []models.Node `json:"nodes"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "ND-001", list.Nodes[0].ID)

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-002", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var n models.Node
	decode(t, rec, &n)
	assert.Equal(t, models.ModeManual, n.Mode)

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestAndRead(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)

	rec := do(t, r, http.MethodPost, "/api/pi/telemetry",
		`{"nodeId":"ND-001","vuf":1.7,"v_a":231,"v_b":229,"v_c":230,"neutral_current":2.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","updated_node":"ND-001"}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-001/telemetry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tel struct {
		Count  int                     `json:"count"`
		Points []models.TelemetryPoint `json:"points"`
	}
	decode(t, rec, &tel)
	require.Equal(t, 1, tel.Count)
	assert.Equal(t, 1.7, tel.Points[0].VUF)
	assert.Equal(t, 231, tel.Points[0].VA)

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-001/telemetry/recent?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tel)
	assert.Equal(t, 1, tel.Count)

	rec = do(t, r, http.MethodGet, "/api/db/telemetry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows struct {
		Count int `json:"count"`
	}
	decode(t, rec, &rows)
	assert.Equal(t, 1, rows.Count)

	rec = do(t, r, http.MethodGet, "/api/events?node=ND-001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var evs struct {
		Count  int            `json:"count"`
		Events []models.Event `json:"events"`
	}
	decode(t, rec, &evs)
	require.Equal(t, 1, evs.Count)
	assert.Equal(t, models.EventTelemetry, evs.Events[0].Type)
}

func TestIngestRejectsBadBodies(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/pi/telemetry", `{"vuf":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/pi/telemetry", `{"vuf":1}`).Code)
}

func TestSyntheticTelemetry(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)

	rec := do(t, r, http.MethodGet,
		"/api/nodes/ND-002/telemetry?from=2025-01-01T00:00:00Z&to=2025-01-01T00:30:00Z&step=600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tel struct {
		Count int `json:"count"`
	}
	decode(t, rec, &tel)
	assert.Equal(t, 4, tel.Count)

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-002/telemetry?from=2025-01-02&to=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/nodes/ND-404/telemetry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommands(t *testing.T) {
	r := NewRouter(newTestServer(t), nil)

	rec := do(t, r, http.MethodPost, "/api/commands", `{"nodeIds":[],"command":"restart"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/commands",
		`{"nodeIds":["ND-002"],"command":"switch-mode","params":{"reason":"test"},"initiatedBy":"cli"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cmd models.Command
	decode(t, rec, &cmd)
	assert.True(t, strings.HasPrefix(cmd.ID, "CMD-"))
	assert.Equal(t, models.CommandQueued, cmd.Status)
	assert.Equal(t, "cli", cmd.InitiatedBy)

	rec = do(t, r, http.MethodGet, "/api/commands/"+cmd.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/commands/CMD-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = do(t, r, http.MethodGet, "/api/commands/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,ts,command,nodeIds,initiatedBy,status,result", lines[0])
	assert.Contains(t, lines[1], "switch-mode,ND-002,cli,queued")

	rec = do(t, r, http.MethodGet, "/api/nodes/ND-002", "")
	var n models.Node
	decode(t, rec, &n)
	assert.Equal(t, models.ModeAuto, n.Mode)
}

func TestEventStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(NewRouter(srv, nil))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/stream?node=ND-002"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is registered after the upgrade; retry until it is live
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	var ev models.Event
	received := make(chan error, 1)
	go func() { received <- conn.ReadJSON(&ev) }()

	for {
		_, err := srv.Ingest(context.Background(), "ND-001", server.Reading{VUF: 0.5})
		require.NoError(t, err)
		_, err = srv.Ingest(context.Background(), "ND-002", server.Reading{VUF: 2.2})
		require.NoError(t, err)
		select {
		case err := <-received:
			require.NoError(t, err)
			assert.Equal(t, "ND-002", ev.NodeID)
			assert.Equal(t, models.SeverityWarn, ev.Severity)
			return
		case <-time.After(20 * time.Millisecond):
			require.True(t, time.Now().Before(deadline), "no event received")
		}
	}
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveCommand("restart")

	mux := http.NewServeMux()
	RegisterMetrics(mux, reg)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `command="restart"`)
}

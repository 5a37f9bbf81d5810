package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, base string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(zap.NewNop(), &out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--server", base}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"target=1.5", "force=true", "reason=ops=call"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"target": 1.5, "force": true, "reason": "ops=call"}, p)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}

func TestSendPostsCommand(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/commands", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"CMD-1","status":"queued"}`))
	}))
	defer ts.Close()

	out, err := run(t, ts.URL, "send", "--nodes", "ND-001,ND-002", "--command", "restart", "--param", "delay=5")
	require.NoError(t, err)
	assert.Contains(t, out, `"CMD-1"`)
	assert.Equal(t, []any{"ND-001", "ND-002"}, got["nodeIds"])
	assert.Equal(t, "restart", got["command"])
	assert.Equal(t, map[string]any{"delay": 5.0}, got["params"])
	assert.Equal(t, "feederctl", got["initiatedBy"])
}

func TestTelemetryQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/nodes/ND-004/telemetry", r.URL.Path)
		assert.Equal(t, "300", r.URL.Query().Get("step"))
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("from"))
		_, _ = w.Write([]byte(`{"count":0,"points":[]}`))
	}))
	defer ts.Close()

	_, err := run(t, ts.URL, "telemetry", "ND-004", "--step", "300", "--from", "2025-01-01")
	require.NoError(t, err)
}

func TestErrorStatusSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"node not found"}`))
	}))
	defer ts.Close()

	_, err := run(t, ts.URL, "node", "ND-999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node not found")
}

func TestAuditCopiesCSV(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("id,ts\nCMD-1,2025-01-01T00:00:00Z\n"))
	}))
	defer ts.Close()

	out, err := run(t, ts.URL, "audit")
	require.NoError(t, err)
	assert.Equal(t, "id,ts\nCMD-1,2025-01-01T00:00:00Z\n", out)
}

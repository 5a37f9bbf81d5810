package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/server"
)

type Handler struct {
	srv *server.Server
	log *zap.Logger
}

// NewRouter builds the gin engine serving the REST facade and the live
// event stream.
func NewRouter(srv *server.Server, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{srv: srv, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog(), cors())

	r.GET("/", h.handleRoot)
	r.GET("/healthz", h.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/pi/telemetry", h.handleIngest)

		api.GET("/nodes", h.handleListNodes)
		api.GET("/nodes/:id", h.handleGetNode)
		api.GET("/nodes/:id/telemetry", h.handleNodeTelemetry)
		api.GET("/nodes/:id/telemetry/recent", h.handleRecentTelemetry)

		api.GET("/events", h.handleListEvents)
		api.GET("/events/stream", h.handleEventStream)

		api.POST("/commands", h.handleDispatch)
		api.GET("/commands", h.handleListCommands)
		api.GET("/commands/export.csv", h.handleExportCommands)
		api.GET("/commands/:id", h.handleGetCommand)

		api.GET("/db/telemetry", h.handleDurableTelemetry)
	}
	return r
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// cors allows any origin; the dashboard is served from elsewhere.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"msg": "feeder balancer backend running"})
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleIngest(c *gin.Context) {
	var req struct {
		NodeID string `json:"nodeId"`
		server.Reading
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	ack, err := h.srv.Ingest(c.Request.Context(), req.NodeID, req.Reading)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h *Handler) handleListNodes(c *gin.Context) {
	nodes := h.srv.ListNodes()
	c.JSON(http.StatusOK, gin.H{"count": len(nodes), "nodes": nodes})
}

func (h *Handler) handleGetNode(c *gin.Context) {
	n, err := h.srv.GetNode(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) handleNodeTelemetry(c *gin.Context) {
	q := server.TelemetryQuery{
		From:  c.Query("from"),
		To:    c.Query("to"),
		Limit: queryInt(c, "limit", 0),
	}
	if s := queryInt(c, "step", 0); s > 0 {
		q.Step = time.Duration(s) * time.Second
	}
	pts, err := h.srv.NodeTelemetry(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(pts), "points": pts})
}

func (h *Handler) handleRecentTelemetry(c *gin.Context) {
	pts := h.srv.RecentTelemetry(c.Param("id"), queryInt(c, "limit", 0))
	c.JSON(http.StatusOK, gin.H{"count": len(pts), "points": pts})
}

func (h *Handler) handleListEvents(c *gin.Context) {
	evs := h.srv.ListEvents(queryInt(c, "limit", 0), c.Query("node"))
	c.JSON(http.StatusOK, gin.H{"count": len(evs), "events": evs})
}

func (h *Handler) handleDispatch(c *gin.Context) {
	var req server.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	cmd, err := h.srv.Dispatch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (h *Handler) handleListCommands(c *gin.Context) {
	cmds, err := h.srv.ListCommands(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(cmds), "commands": cmds})
}

func (h *Handler) handleExportCommands(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="commands.csv"`)
	c.Status(http.StatusOK)
	if err := h.srv.WriteAuditCSV(c.Request.Context(), c.Writer); err != nil {
		h.log.Error("audit export failed", zap.Error(err))
	}
}

func (h *Handler) handleGetCommand(c *gin.Context) {
	cmd, err := h.srv.GetCommand(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (h *Handler) handleDurableTelemetry(c *gin.Context) {
	rows, err := h.srv.DurableTelemetry(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "rows": rows})
}

// fail maps service errors onto status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, server.ErrValidation), errors.Is(err, server.ErrInvalidRange):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, server.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// queryInt reads an integer query parameter, falling back to def when it
// is missing or malformed.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

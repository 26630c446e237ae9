// Package api exposes the miner's command surface as a REST/JSON API.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/cgproxy/internal/observability"
)

// Commander sends one raw command to the miner and returns the decoded reply.
// *cgminer.Client satisfies it.
type Commander interface {
	SendCommand(ctx context.Context, command string) (any, error)
}

const msgInvalidResponse = "Invalid response from CGMiner"

// Server maps REST routes onto miner commands.
type Server struct {
	miner  Commander
	logger *slog.Logger
}

// NewRouter builds the gin engine with logging, metrics, open CORS, and every route.
func NewRouter(miner Commander, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{miner: miner, logger: logger}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.RequestLogger(logger),
		observability.RequestMetricsMiddleware(),
		cors.Default(),
	)
	s.RegisterRoutes(router)
	return router
}

func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes := router.Group("/api")
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	routes.POST("/command", s.command)

	routes.GET("/stats", s.stats)
	routes.GET("/stats/raw", s.rawSection("stats", "STATS"))
	routes.GET("/devices", s.rawSection("devs", "DEVS"))
	routes.GET("/pools", s.pools)
	routes.GET("/config", s.config)
	routes.GET("/coin", s.coin)
	routes.GET("/usbstats", s.usbStats)
	routes.GET("/devdetails", s.devDetails)
	routes.GET("/version", s.version)
	routes.GET("/notify", s.camelSection("notify", "NOTIFY", true))
	routes.GET("/lcd", s.camelSection("lcd", "LCD", false))

	control := routes.Group("/control")
	control.POST("/restart", s.fixed("restart"))
	control.POST("/quit", s.fixed("quit"))
	control.POST("/save", s.save)

	pools := routes.Group("/pools")
	pools.POST("/add", s.addPool)
	pools.POST("/remove", s.poolAction("removepool"))
	pools.POST("/enable", s.poolAction("enablepool"))
	pools.POST("/disable", s.poolAction("disablepool"))
	pools.POST("/switch", s.poolAction("switchpool"))
	pools.POST("/priority", s.poolPriority)

	devices := routes.Group("/devices")
	devices.POST("/enable", s.deviceAction("ascenable"))
	devices.POST("/disable", s.deviceAction("ascdisable"))
	devices.POST("/set", s.deviceSet)
	devices.POST("/frequency", s.deviceFrequency)

	routes.POST("/config/set", s.setConfig)
}

// send runs one miner command on behalf of the request. On failure it writes
// the 500 reply and returns false.
func (s *Server) send(c *gin.Context, command string) (any, bool) {
	data, err := s.miner.SendCommand(c.Request.Context(), command)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return data, true
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// body decodes the JSON request body into a generic object. An empty body is
// an empty object. On malformed input it writes 400 and returns false.
func body(c *gin.Context) (map[string]any, bool) {
	fields := map[string]any{}
	if c.Request.Body == nil {
		return fields, true
	}
	if err := c.ShouldBindJSON(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, true
		}
		badRequest(c, "invalid JSON body")
		return nil, false
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, true
}

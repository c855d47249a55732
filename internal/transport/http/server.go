package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/knagata/memosync-server/internal/auth"
	"github.com/knagata/memosync-server/internal/config"
	"github.com/knagata/memosync-server/internal/core"
	"github.com/knagata/memosync-server/internal/metrics"
	"github.com/knagata/memosync-server/internal/store"
)

// NewServer builds the HTTP server: WebSocket endpoint, the room verify
// API, health and metrics.
func NewServer(hub *core.Hub, authStore store.AuthStore, cfg config.Config, m *metrics.Metrics, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	var tokenCfg *auth.TokenConfig
	if cfg.TokenSecret != "" {
		tokenCfg = &auth.TokenConfig{Secret: []byte(cfg.TokenSecret)}
	}

	wsHandler := NewWSHandler(hub, WSOptions{
		TokenConfig:     tokenCfg,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
		Metrics:         m,
	}, logger)

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", gin.WrapH(wsHandler))

	rooms := NewRoomHandlers(authStore, logger)
	api := router.Group("/api")
	{
		api.POST("/rooms/:id/verify", rooms.VerifyAccess)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

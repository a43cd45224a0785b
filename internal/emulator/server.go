package emulator

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/metrics"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
}

// NewRouter builds the gin engine serving /ws, /health, /metrics and the
// room endpoints. A nil gatherer serves the default registry.
func NewRouter(hub *Hub, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zerolog.Logger) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, logger, m)))

	rooms := NewRoomHandlers(hub, logger)
	api := router.Group("/rooms", LoggerMiddleware(logger))
	api.GET("", rooms.ListRooms)
	api.POST("/:room/publish", AuthMiddleware(hub.cfg.JWT, logger), rooms.Publish)

	return router
}

// NewServer builds an HTTP server around NewRouter.
func NewServer(hub *Hub, cfg ServerConfig, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, gatherer, m, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

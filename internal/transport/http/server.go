package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/beamlink/relay-server/internal/config"
	"github.com/beamlink/relay-server/internal/core"
)

// NewServer builds the HTTP server: the health endpoint and the websocket
// upgrade route. There is no other REST surface.
func NewServer(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	// The websocket route must bypass gin: the upgrade hijacks the
	// connection after the 101 is written, which gin's response writer
	// refuses.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

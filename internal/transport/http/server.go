package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Hub         *core.Hub
	AuthService *auth.Service
	Verifier    core.Verifier
	Metrics     *metrics.Metrics
	Logger      *zerolog.Logger
}

// NewServer builds the HTTP server: health, metrics, credential API and the /ws relay.
func NewServer(deps Deps, cfg *config.Config) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(deps Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(deps.Logger))

	r.GET("/health", healthHandler)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	r.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, cfg.MaxFrameBytes, deps.Logger)))

	api := NewAPIHandlers(deps.AuthService, deps.Logger)
	online := NewOnlineHandlers(deps.Hub)

	apiGroup := r.Group("/api")
	apiGroup.POST("/register", api.Register)
	apiGroup.POST("/login", api.Login)
	apiGroup.GET("/online", AuthMiddleware(deps.Verifier, deps.Logger), online.List)

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

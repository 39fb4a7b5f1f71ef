package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Orch   *orch.Orchestrator
	Auth   *auth.Service
	Health Pinger
	Recent RecentRooms // nil without Redis
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	identity := SessionIdentity{Auth: deps.Auth}
	h := &handlers{
		auth:     deps.Auth,
		orch:     deps.Orch,
		identity: identity,
		pinger:   deps.Health,
		recent:   deps.Recent,
		history:  cfg.History,
	}
	ws := signal.NewSignalWSController(deps.Orch, identity, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	r.GET("/health", h.health)

	g := r.Group("/api")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)

	authed := g.Group("", identity.Required())
	authed.GET("/rooms", h.listRooms)
	authed.POST("/rooms", h.createRoom)
	authed.GET("/rooms/recent", h.recentRooms)
	authed.GET("/rooms/:room_id", h.getRoom)
	authed.DELETE("/rooms/:room_id", h.deleteRoom)
	authed.GET("/messages/:room_id", h.listMessages)

	g.GET("/ws", func(c *gin.Context) {
		ws.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

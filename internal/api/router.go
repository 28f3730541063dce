package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
)

type RouterConfig struct {
	AdminAPIKey string
	DB          *storage.PostgresStore
	MinIO       *storage.MinIOStore
	Producer    *queue.Producer
	Hub         *ws.Hub
	Service     *faceauth.Service
	Cookies     session.Cookies
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Public auth surface
	authH := handlers.NewAuthHandler(cfg.Service, cfg.Cookies)
	v1.POST("/auth/register", authH.Register)
	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/login/face", authH.LoginFace)
	v1.POST("/auth/logout", authH.Logout)
	v1.GET("/auth/me",
		RequireSession(cfg.Cookies, cfg.Service.ValidateSession),
		authH.Me)

	// Admin surface (API key)
	admin := v1.Group("/admin")
	admin.Use(auth.APIKeyMiddleware(cfg.AdminAPIKey))

	admin.GET("/ws", cfg.Hub.HandleWS)

	adminH := handlers.NewAdminHandler(cfg.DB, cfg.MinIO)
	admin.GET("/identities", adminH.ListIdentities)
	admin.GET("/identities/:id", adminH.GetIdentity)
	admin.GET("/identities/:id/images/:seq", adminH.GetIdentityImage)
	admin.GET("/events", adminH.ListEvents)

	return r
}

package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/app"
	iauth "github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/handlers"
	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the REST surface and
// the socket endpoint.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}

	userSvc, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	taskSvc, err := services.NewTaskService(db)
	if err != nil {
		return nil, err
	}
	commentSvc, err := services.NewCommentService(db, cfg.Realtime.MaxCommentLength)
	if err != nil {
		return nil, err
	}
	authn, err := iauth.NewAuthenticator(jwt, userSvc)
	if err != nil {
		return nil, err
	}

	rt := cfg.Realtime
	transport := realtime.NewTransport(hub, cfg.Server.AllowedOrigins,
		realtime.WithMaxMessageBytes(rt.MaxMessageBytes),
		realtime.WithPongWait(rt.PongWait),
		realtime.WithWriteWait(rt.WriteWait),
	)

	metricsPath := cfg.Monitoring.Prometheus.Endpoint
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics("/ws", metricsPath))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	r.GET("/health", handlers.Health(db, hub))

	// Socket gateway authenticates on its own so browsers can pass the token as a query.
	realtimeHandler := handlers.NewRealtimeHandler(authn, transport)
	r.GET("/ws", realtimeHandler.Stream)

	// Public auth routes, throttled per client against credential stuffing.
	authHandler := handlers.NewAuthHandler(userSvc, jwt, cfg.Auth.AllowRegistration)
	authLimiter := middleware.NewRateLimiter(20, time.Minute)
	auth := r.Group("/api/auth", authLimiter.Middleware())
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(authn))

	api.GET("/auth/me", authHandler.Me)

	taskHandler := handlers.NewTaskHandler(taskSvc, hub)
	commentHandler := handlers.NewCommentHandler(commentSvc, hub)
	tasks := api.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.GET("/:id", taskHandler.Get)
		tasks.PATCH("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.GET("/:id/comments", commentHandler.List)
		tasks.POST("/:id/comments", commentHandler.Create)
	}

	presenceHandler := handlers.NewPresenceHandler(hub)
	api.GET("/presence", presenceHandler.List)
	api.GET("/presence/:userID", presenceHandler.Get)

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/internal/database"
	"github.com/cratedig/spindle/internal/handlers"
	"github.com/cratedig/spindle/internal/middleware"
	"github.com/cratedig/spindle/internal/services"
	"github.com/cratedig/spindle/pkg/models"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancelBackground context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	if err := svcs.Store.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	app.handlers = handlers.New(app.logger, svcs)
	app.setupRouter()
	app.startBackground()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// startBackground launches the cache sweeper and, when Kafka is enabled,
// the feedback consumer.
func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel

	a.services.Cache.StartSweeper(ctx)

	if a.services.FeedbackBus != nil {
		go func() {
			err := a.services.FeedbackBus.Consume(ctx, func(ev models.FeedbackEvent) error {
				return a.services.Engine.ApplyFeedbackEvent(ctx, ev)
			})
			if err != nil && ctx.Err() == nil {
				a.logger.WithError(err).Error("Feedback consumer exited")
			}
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	a.services.Cache.Stop()

	if a.services.FeedbackBus != nil {
		if err := a.services.FeedbackBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing feedback bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", a.handlers.Recommendation.Get)
		}

		api.POST("/feedback",
			middleware.FeedbackRateLimit(a.services.RateLimit, a.logger),
			a.handlers.Feedback.Record,
		)
	}

	a.router = router
}

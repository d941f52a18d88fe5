package main

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inventory-platform/item-detail-service/internal/application"
	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/internal/events"
	"github.com/inventory-platform/item-detail-service/internal/infrastructure/memory"
	mongoRepo "github.com/inventory-platform/item-detail-service/internal/infrastructure/mongodb"
	"github.com/inventory-platform/item-detail-service/internal/security"
	"github.com/inventory-platform/item-detail-service/pkg/errors"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
	"github.com/inventory-platform/item-detail-service/pkg/metrics"
	"github.com/inventory-platform/item-detail-service/pkg/middleware"
	"github.com/inventory-platform/item-detail-service/pkg/mongodb"
	"github.com/inventory-platform/item-detail-service/pkg/resilience"
	"github.com/inventory-platform/item-detail-service/pkg/tracing"
)

const serviceName = "item-detail-service"

func main() {
	// Setup structured logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting item-detail-service API")

	// Load configuration
	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing - don't exit
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)
	logger.Info("Metrics initialized")

	// Initialize export cipher
	if config.ExportKey == "" {
		logger.Error("EXPORT_KEY is required")
		os.Exit(1)
	}
	cipher, err := security.NewAESGCM([]byte(config.ExportKey), []byte(config.ExportSalt), []byte("item-export"))
	if err != nil {
		logger.WithError(err).Error("Failed to initialize export cipher")
		os.Exit(1)
	}

	// Initialize item store
	var store domain.ItemStore
	var readiness func() error
	switch config.StoreBackend {
	case "memory":
		store = memory.New()
		readiness = func() error { return nil }
		logger.Info("Using in-memory item store")
	default:
		mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to MongoDB")
			os.Exit(1)
		}
		defer mongoClient.Close(ctx)
		logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("mongodb"), logger.Logger)
		m.RegisterBreakerState(breaker.Name(), breaker.StateValue)
		store = mongoRepo.NewItemRepository(mongoClient.Database(), breaker, logger)
		readiness = func() error { return mongoClient.HealthCheck(ctx) }
	}

	// Initialize event publisher; disabled when no brokers are configured
	var publisher events.Publisher
	if len(config.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(config.Kafka)
		logger.Info("Kafka publisher initialized", "brokers", config.Kafka.Brokers)
	} else {
		publisher = events.NoopPublisher{}
		logger.Info("Event publishing disabled, no Kafka brokers configured")
	}
	defer publisher.Close()

	// Initialize session manager; one detail session per item, shared across
	// all consumers of that item.
	sessions := application.NewSessionManager(func(itemID int64) (*application.DetailService, error) {
		return application.NewDetailService(application.Config{
			ItemID:      itemID,
			Store:       store,
			Cipher:      cipher,
			ScratchDir:  config.ScratchDir,
			Publisher:   publisher,
			Metrics:     m,
			Logger:      logger,
			GracePeriod: config.GracePeriod,
		})
	})
	defer sessions.CloseAll()
	logger.Info("Session manager initialized")

	// Setup Gin router with middleware
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API v1 routes
	api := router.Group("/api/v1/items")
	{
		api.GET("/:id", getStateHandler(sessions, logger))
		api.GET("/:id/stream", streamStateHandler(sessions, logger))
		api.GET("/:id/share", shareHandler(sessions, logger))
		api.POST("/:id/decrement", decrementHandler(sessions, logger))
		api.POST("/:id/export", exportHandler(sessions, logger))
		api.DELETE("/:id", deleteHandler(sessions, logger))
	}

	// Start server
	srv := &http.Server{
		Addr:        config.ServerAddr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the stream endpoint holds its response open.
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr   string
	StoreBackend string
	MongoDB      *mongodb.Config
	Kafka        *events.Config
	ExportKey    string
	ExportSalt   string
	ScratchDir   string
	GracePeriod  time.Duration
}

func loadConfig() *Config {
	graceMs, err := strconv.Atoi(getEnv("PROJECTOR_GRACE_MS", "5000"))
	if err != nil || graceMs < 0 {
		graceMs = 5000
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8010"),
		StoreBackend: getEnv("STORE_BACKEND", "mongodb"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "item_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &events.Config{
			Brokers:      splitBrokers(os.Getenv("KAFKA_BROKERS")),
			Topic:        getEnv("KAFKA_TOPIC", "item-events"),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		ExportKey:   os.Getenv("EXPORT_KEY"),
		ExportSalt:  getEnv("EXPORT_SALT", "item-detail-export"),
		ScratchDir:  getEnv("SCRATCH_DIR", os.TempDir()),
		GracePeriod: time.Duration(graceMs) * time.Millisecond,
	}
}

// splitBrokers parses a comma-separated broker list; empty means disabled.
func splitBrokers(value string) []string {
	var brokers []string
	for _, broker := range strings.Split(value, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func itemSession(c *gin.Context, sessions *application.SessionManager, logger *logging.Logger) (*application.DetailService, int64, bool) {
	responder := middleware.NewErrorResponder(c, logger.Logger)

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		responder.RespondBadRequest("item id must be a positive integer")
		return nil, 0, false
	}

	session, err := sessions.Get(itemID)
	if err != nil {
		respondDomainError(responder, err)
		return nil, 0, false
	}
	return session, itemID, true
}

func respondDomainError(responder *middleware.ErrorResponder, err error) {
	switch {
	case stderrors.Is(err, domain.ErrItemNotFound):
		responder.RespondNotFound("item")
	case stderrors.Is(err, domain.ErrInvalidItemID), stderrors.Is(err, domain.ErrMalformedDetails):
		responder.RespondWithAppError(errors.ErrBadRequest(err.Error()))
	default:
		responder.RespondInternalError(err)
	}
}

func getStateHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, session.State(c.Request.Context()))
	}
}

// streamStateHandler serves the live ViewState stream over server-sent
// events. The current state is replayed immediately, then every change is
// pushed until the client disconnects.
func streamStateHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		states, stop := session.WatchState()
		defer stop()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case state, open := <-states:
				if !open {
					return false
				}
				c.SSEvent("state", state)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func decrementHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, itemID, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		session.DecrementQuantity()
		c.JSON(http.StatusAccepted, gin.H{"itemId": itemID, "status": "accepted"})
	}
}

func deleteHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		session, itemID, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		if err := session.DeleteItem(c.Request.Context()); err != nil {
			respondDomainError(responder, err)
			return
		}

		// The item is gone; the session has nothing left to project.
		sessions.Remove(itemID)
		c.Status(http.StatusNoContent)
	}
}

func exportHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		session, itemID, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		c.Writer.Header().Set("Content-Type", "application/octet-stream")
		c.Writer.Header().Set("Content-Disposition", `attachment; filename="item_export.enc"`)

		if err := session.Export(c.Request.Context(), c.Writer); err != nil {
			if c.Writer.Written() {
				// Headers are out; all we can do is log and drop the connection.
				logger.WithItemID(itemID).WithError(err).Error("Export aborted mid-stream")
				return
			}
			// Nothing was written; drop the download headers so the error
			// body goes out as JSON.
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
			responder.RespondWithAppError(errors.ErrExportFailed(err))
		}
	}
}

func shareHandler(sessions *application.SessionManager, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _, ok := itemSession(c, sessions, logger)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, session.ComposeShareText(c.Request.Context()))
	}
}

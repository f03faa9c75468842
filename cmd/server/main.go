package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/database"
	"github.com/clinprep/exam-booking-backend/internal/handlers"
	"github.com/clinprep/exam-booking-backend/internal/middleware"
	"github.com/clinprep/exam-booking-backend/internal/services"
	"github.com/clinprep/exam-booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ClinPrep Exam Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize local audit database. Optional in development: the remote
	// store holds all booking state, the local database only the audit trail.
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		logger.Info("Connecting to audit database...")
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to audit database: %v", err)
		}
		defer db.Close()
		logger.Info("Audit database connection established")
	} else {
		logger.Warn("DATABASE_URL not set, audit trail disabled")
	}

	var auditRepo *database.AuditRepository
	if db != nil {
		auditRepo = database.NewAuditRepository(db, logger)
	}

	// Initialize remote store client and repositories
	logger.Info("Initializing remote store client...")
	crmClient := crm.NewClient(cfg.CRM, logger)
	batchClient := crm.NewBatchClient(crmClient, cfg.CRM, logger)
	contactRepo := crm.NewContactRepository(crmClient, batchClient)
	bookingRepo := crm.NewBookingRepository(crmClient, batchClient)
	sessionRepo := crm.NewSessionRepository(crmClient, batchClient)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.SessionTokenExpiry)
	resolver := services.NewAssociationResolver(batchClient, sessionRepo, logger)
	ledger := services.NewCreditLedgerService(contactRepo, logger)

	var compensationStore services.CompensationStore
	var reconciliationStore services.ReconciliationStore
	var eventStore handlers.EventStore
	var compensationLister handlers.CompensationLister
	if auditRepo != nil {
		compensationStore = auditRepo
		reconciliationStore = auditRepo
		eventStore = auditRepo
		compensationLister = auditRepo
	}

	compensator := services.NewCompensationManager(bookingRepo, sessionRepo, ledger, batchClient, compensationStore, logger)
	bookingService := services.NewBookingService(
		contactRepo, bookingRepo, sessionRepo, batchClient,
		resolver, ledger, compensator, logger,
	)
	reconcileService := services.NewReconciliationService(bookingRepo, sessionRepo, reconciliationStore, cfg.Reconcile, logger)

	// Initialize and start cron service
	var cronService *services.CronService
	if cfg.Reconcile.Enabled {
		cronService = services.NewCronService(reconcileService, cfg.Reconcile, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		logger.Info("Cron service started - counter reconciliation enabled")
	} else {
		logger.Warn("Reconciliation disabled, session counters will drift until corrected manually")
	}

	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, jwtService, eventStore, logger)
	opsHandler := handlers.NewOpsHandler(reconcileService, cronService, compensationLister, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Eligibility verification (public, issues the session token)
		v1.POST("/eligibility/verify", bookingHandler.VerifyEligibility)

		// Booking routes (require a portal session token)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.SessionMiddleware(jwtService, logger))
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.POST("/:booking_id/cancel", bookingHandler.CancelBooking)
		}
	}

	// Operator routes, protected by network controls upstream
	ops := router.Group("/ops")
	{
		ops.GET("/inconsistencies", opsHandler.GetInconsistencies)
		ops.POST("/reconcile", opsHandler.RunReconciliation)
		ops.GET("/jobs", opsHandler.GetJobStatus)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cronService != nil {
		cronService.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "disabled"
		if db != nil {
			dbStatus = "healthy"
			if err := db.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": "unhealthy",
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  dbStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

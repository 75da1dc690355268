package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/bonsaidca/bonsai/internal/auth"
	"github.com/bonsaidca/bonsai/internal/credentials"
	"github.com/bonsaidca/bonsai/internal/database"
	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/exchange/gemini"
	"github.com/bonsaidca/bonsai/internal/executor"
	"github.com/bonsaidca/bonsai/internal/orders"
	"github.com/bonsaidca/bonsai/internal/scheduler"
	"github.com/bonsaidca/bonsai/internal/schedules"
	"github.com/bonsaidca/bonsai/internal/types"
	"github.com/bonsaidca/bonsai/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the management API and the schedule daemon and runs both until
// interrupted.
func main() {
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Exchange clients are looked up per credential; new exchanges plug in
	// here.
	registry := exchange.NewRegistry()
	registry.Register(types.ExchangeGemini, gemini.Factory)

	router := gin.Default()

	authService := auth.NewService(envOr("BONSAI_JWT_SECRET", "bonsai-secret-key"))
	authService.RegisterAPICredentials(
		envOr("BONSAI_API_KEY", "local-api-key"),
		envOr("BONSAI_API_SECRET", "local-api-secret"),
	)
	authHandlers := auth.NewGinHandlers(authService)

	executorService := executor.NewService(db, registry)
	schedulerService := scheduler.NewService(db, registry, executorService)

	credentialHandlers := credentials.NewGinHandlers(credentials.NewService(db))
	scheduleHandlers := schedules.NewGinHandlers(schedules.NewService(db))
	orderHandlers := orders.NewGinHandlers(orders.NewService(db, executorService))

	// Start the schedule daemon unless explicitly disabled.
	daemonCtx, daemonCancel := context.WithCancel(context.Background())
	defer daemonCancel()
	if os.Getenv("DAEMON") != "false" {
		processor := scheduler.NewProcessor(schedulerService, daemonInterval())
		go processor.Start(daemonCtx)
	}

	router.Use(middleware.RateLimit())
	setupRoutes(router, authService, authHandlers, credentialHandlers, scheduleHandlers, orderHandlers)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	daemonCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers. Everything
// except token issuance requires a valid JWT.
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	credentialHandlers *credentials.GinHandlers,
	scheduleHandlers *schedules.GinHandlers,
	orderHandlers *orders.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService.Secret()))
		{
			creds := protected.Group("/credentials")
			{
				creds.POST("", credentialHandlers.CreateCredentialHandler())
				creds.GET("", credentialHandlers.ListCredentialsHandler())
				creds.GET("/:credential_id", credentialHandlers.GetCredentialHandler())
				creds.DELETE("/:credential_id", credentialHandlers.DeleteCredentialHandler())
			}

			scheds := protected.Group("/schedules")
			{
				scheds.POST("", scheduleHandlers.CreateScheduleHandler())
				scheds.GET("", scheduleHandlers.ListSchedulesHandler())
				scheds.GET("/:schedule_id", scheduleHandlers.GetScheduleHandler())
				scheds.POST("/:schedule_id/pause", scheduleHandlers.PauseScheduleHandler())
				scheds.POST("/:schedule_id/unpause", scheduleHandlers.UnpauseScheduleHandler())
				scheds.DELETE("/:schedule_id", scheduleHandlers.DeleteScheduleHandler())
			}

			ords := protected.Group("/orders")
			{
				ords.GET("/recent", orderHandlers.RecentOrdersHandler())
				ords.GET("/:order_id", orderHandlers.GetOrderHandler())
				ords.POST("/manual", orderHandlers.ManualOrderHandler())
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func daemonInterval() time.Duration {
	seconds, err := strconv.Atoi(os.Getenv("DAEMON_INTERVAL"))
	if err != nil || seconds <= 0 {
		return scheduler.DefaultInterval
	}
	return time.Duration(seconds) * time.Second
}

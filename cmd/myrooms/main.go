package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/navikt/myrooms/internal/api"
	"github.com/navikt/myrooms/internal/config"
	"github.com/navikt/myrooms/internal/logging"
	"github.com/navikt/myrooms/internal/metrics"
	"github.com/navikt/myrooms/internal/repository"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/navikt/myrooms/internal/service"
	"github.com/navikt/myrooms/internal/web"
)

func main() {
	// A missing .env file is fine; the environment wins over it
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	serverConfig := config.GetServerConfig()

	logger, err := logging.New(serverConfig.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	roomAPIConfig := config.GetRoomAPIConfig()
	if !roomAPIConfig.IsValid() {
		logger.Fatalf("Invalid ROOM_API_BASE_URL: %q", roomAPIConfig.BaseURL)
	}

	// Initialize the session store using the factory
	redisConfig := config.GetRedisConfig()
	repo, err := repository.NewRepository(redisConfig)
	if err != nil {
		logger.Fatalf("Failed to initialize repository: %v", err)
	}

	// Close the Redis connection properly on exit
	if redisRepo, ok := repo.(interface{ Close() error }); ok {
		defer func() {
			if err := redisRepo.Close(); err != nil {
				logger.Errorf("Error closing Redis connection: %v", err)
			}
		}()
	}
	if redisConfig.Enabled {
		logger.Infof("Using Redis session store with TTL %s", redisConfig.SessionTTL)
	} else {
		logger.Infof("Using in-memory session store with TTL %s", redisConfig.SessionTTL)
	}

	appMetrics := metrics.New()

	// Initialize the service layer
	roomClient := roomapi.NewClient(roomAPIConfig)
	viewService := service.NewViewService(repo, roomClient, logger, appMetrics)

	// Set up web UI
	sseManager := web.NewSSEManager(logger)
	webHandler, err := web.NewHandler(viewService, sseManager, logger, serverConfig.TemplatesDir, serverConfig.StaticDir)
	if err != nil {
		logger.Fatalf("Failed to initialize web handler: %v", err)
	}

	// Push list updates to the page of each session
	viewService.RegisterUpdateCallback(webHandler.NotifyViewUpdate)
	viewService.RegisterUnmountCallback(webHandler.NotifyViewUnmount)

	janitor := service.NewJanitor(viewService, serverConfig.SweepSchedule)
	if err := janitor.Start(); err != nil {
		logger.Fatalf("Failed to start session janitor: %v", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(web.HTTPProtocolMiddleware)
	router.Use(appMetrics.Middleware)

	api.SetupRoutes(router, repo, appMetrics, logger)
	webHandler.SetupRoutes(router)

	// Configure the HTTP server
	server := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("Starting myrooms server on port %s (room API %s)", serverConfig.Port, roomAPIConfig.BaseURL)
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalf("Error starting server: %v", err)

	case <-shutdown:
		logger.Info("Shutting down server...")

		janitor.Stop()

		// First, shutdown the web handler to close SSE connections
		webHandler.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Doesn't block if there are no connections, but will otherwise
		// wait until the timeout deadline.
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			logger.Errorf("Error shutting down server: %v", err)
		}

		// Cancel in-flight fetches; stored sessions are kept for the next instance
		viewService.Shutdown()

		logger.Info("Server gracefully stopped")
	}
}

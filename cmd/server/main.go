// Package main is the entry point for the API server.
// It loads configuration, wires the services, sets up the HTTP server
// and shuts it down gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ventureflow/internal/bootstrap"
	"ventureflow/internal/config"
	"ventureflow/internal/handlers"
	"ventureflow/internal/middleware"
	"ventureflow/internal/routes"
	"ventureflow/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 30 * time.Second

func main() {
	config.LoadEnv()
	cfg := config.Load()

	if config.IsProduction() && cfg.Auth.JWTSecret == "ventureflow" {
		log.Fatal("JWT_SECRET must be set in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialise application: %v", err)
	}
	defer app.Close()

	server := fiber.New(fiber.Config{
		AppName:      "ventureflow",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return response.Error(c, fe.Code, fe.Message)
			}
			return response.FromError(c, err)
		},
	})

	server.Use(recover.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: !strings.Contains(cfg.App.CORSOrigins, "*"),
	}))
	server.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(server, routes.Handlers{
		Escrow:  handlers.NewEscrowHandler(app.Escrow),
		Offer:   handlers.NewOfferHandler(app.Investment),
		Payment: handlers.NewPaymentHandler(app.Payments, app.Investment),
		Fraud:   handlers.NewFraudHandler(app.Fraud),
		Health:  handlers.NewHealthHandler(app.DB, app.Cache),
	}, middleware.NewAuthMiddleware(cfg.Auth.JWTSecret))

	if cfg.Escrow.SweepInterval > 0 {
		go runSweeper(ctx, app, cfg.Escrow.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on :%s", cfg.App.Port)
		errCh <- server.Listen(":" + cfg.App.Port)
	}()

	select {
	case err := <-errCh:
		log.Printf("Server stopped: %v", err)
	case <-ctx.Done():
		log.Println("Shutdown signal received, draining connections...")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Printf("⚠️ Graceful shutdown failed: %v", err)
		}
	}
}

// runSweeper expires lapsed wallets and stale intents until ctx is cancelled.
func runSweeper(ctx context.Context, app *bootstrap.App, interval time.Duration) {
	log.Printf("[sweeper] running every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, cancelled, err := app.Sweep(ctx)
			if err != nil {
				log.Printf("[sweeper] %v", err)
			}
			if expired > 0 || cancelled > 0 {
				log.Printf("[sweeper] expired %d wallets, cancelled %d payments", expired, cancelled)
			}
		}
	}
}

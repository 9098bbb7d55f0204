// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"fmt"
	"time"

	"ventureflow/internal/handlers"
	"ventureflow/internal/metrics"
	"ventureflow/internal/middleware"
	"ventureflow/internal/models"
	"ventureflow/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Escrow  *handlers.EscrowHandler
	Offer   *handlers.OfferHandler
	Payment *handlers.PaymentHandler
	Fraud   *handlers.FraudHandler
	Health  *handlers.HealthHandler
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, h Handlers, auth *middleware.AuthMiddleware) {
	app.Use(metrics.Middleware())

	app.Get("/health", h.Health.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Provider callbacks authenticate by payload signature, not JWT.
	notifyLimiter := rateLimiter(60, time.Minute)
	api.Post("/payments/notify", notifyLimiter, h.Payment.Notify)
	api.Post("/payments/notify/:provider", notifyLimiter, h.Payment.Notify)

	protected := api.Group("", auth.Handler) // Auth middleware starts here

	setupEscrowRoutes(protected, h.Escrow)
	setupOfferRoutes(protected, h.Offer)
	setupPaymentRoutes(protected, h.Payment, h.Fraud)
	setupAdminRoutes(protected, h)
}

func setupEscrowRoutes(router fiber.Router, h *handlers.EscrowHandler) {
	escrow := router.Group("/escrow")
	escrow.Post("/create", middleware.HasPermission(models.PermissionEscrowWrite), h.Create)
	escrow.Post("/release", middleware.HasPermission(models.PermissionEscrowWrite), h.Release)
	escrow.Post("/reverse", middleware.HasPermission(models.PermissionEscrowWrite), h.Reverse)
	escrow.Get("/:id", middleware.HasPermission(models.PermissionEscrowRead), h.Get)
	escrow.Get("/:id/requirements", middleware.HasPermission(models.PermissionEscrowRead), h.Requirements)
	escrow.Post("/:id/requirements", middleware.HasPermission(models.PermissionEscrowWrite), h.CompleteRequirement)
	escrow.Get("/:id/ledger", middleware.HasPermission(models.PermissionEscrowRead), h.Ledger)
}

func setupOfferRoutes(router fiber.Router, h *handlers.OfferHandler) {
	offers := router.Group("/offers")
	offers.Post("/", middleware.HasPermission(models.PermissionOfferWrite), h.Propose)
	offers.Get("/", middleware.HasPermission(models.PermissionOfferRead), h.List)
	offers.Get("/:id", middleware.HasPermission(models.PermissionOfferRead), h.Get)
	offers.Post("/:id/accept", middleware.HasPermission(models.PermissionOfferWrite), h.Accept)
	offers.Post("/:id/decline", middleware.HasPermission(models.PermissionOfferWrite), h.Decline)
	offers.Post("/:id/agreement", middleware.HasPermission(models.PermissionOfferWrite), h.GenerateAgreement)
	offers.Get("/:id/agreement", middleware.HasPermission(models.PermissionOfferRead), h.Agreement)
	offers.Post("/:id/sign", middleware.HasPermission(models.PermissionOfferWrite), h.Sign)
	offers.Post("/:id/pay",
		rateLimiter(10, time.Minute),
		middleware.HasPermission(models.PermissionPaymentWrite),
		h.Pay,
	)
	offers.Post("/:id/confirm-transfer", middleware.HasPermission(models.PermissionOfferWrite), h.ConfirmTransfer)
}

func setupPaymentRoutes(router fiber.Router, payment *handlers.PaymentHandler, fraud *handlers.FraudHandler) {
	router.Get("/payments/:id", middleware.HasPermission(models.PermissionOfferRead), payment.Get)
	router.Post("/fraud/check",
		rateLimiter(20, time.Minute),
		middleware.HasPermission(models.PermissionPaymentWrite),
		fraud.Check,
	)
}

func setupAdminRoutes(router fiber.Router, h Handlers) {
	admin := router.Group("/admin", middleware.AdminAuthMiddleware)
	admin.Post("/escrow/sweep", middleware.HasPermission(models.PermissionWriteAdmin), h.Escrow.Sweep)
	admin.Post("/payments/expire", middleware.HasPermission(models.PermissionWriteAdmin), h.Payment.ExpireStale)
	admin.Get("/cache/stats", middleware.HasPermission(models.PermissionReadAdmin), h.Health.CacheStats)
}

// rateLimiter limits requests per caller, keyed on the authenticated user when
// there is one and the client IP otherwise.
func rateLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("userID").(string); ok && userID != "" {
				return fmt.Sprintf("user:%s:%s", userID, c.Path())
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.Error(c, fiber.StatusTooManyRequests, "Too many requests. Please try again later.")
		},
	})
}

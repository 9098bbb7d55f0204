package handlers

import (
	"log"
	"net/url"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
	"ventureflow/internal/services/investment"
	"ventureflow/internal/services/payment"
	"ventureflow/internal/utils"
	"ventureflow/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	paymentService    payment.Service
	investmentService investment.Service
}

func NewPaymentHandler(paymentSvc payment.Service, investmentSvc investment.Service) *PaymentHandler {
	return &PaymentHandler{
		paymentService:    paymentSvc,
		investmentService: investmentSvc,
	}
}

// Notify receives a form-encoded provider notification. It is public; the payload
// signature is the only authentication. The provider only needs a 200.
func (h *PaymentHandler) Notify(c *fiber.Ctx) error {
	provider := c.Params("provider", models.ProviderPayFast)

	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		return response.FromError(c, apperrors.Encoding("notification body is not form encoded"))
	}

	if _, err := h.investmentService.HandlePaymentCallback(c.UserContext(), provider, form); err != nil {
		log.Printf("[payment] %s notification from %s rejected: %v", provider, c.IP(), err)
		return response.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// Get returns a payment intent. With refresh=true the provider is asked for its
// view of the payment; the stored status is not changed by that.
func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	intent, err := h.paymentService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	if !claims.IsAdmin() && intent.UserID != claims.UserID {
		return response.FromError(c, apperrors.ErrPaymentNotFound)
	}

	body := fiber.Map{"payment": intent}
	if c.QueryBool("refresh") {
		status, err := h.paymentService.ProviderStatus(c.UserContext(), intent.ID)
		if err != nil {
			return response.FromError(c, err)
		}
		body["providerStatus"] = status
	}
	return response.Success(c, "Payment retrieved", body)
}

// ExpireStale cancels online intents that never received a notification.
func (h *PaymentHandler) ExpireStale(c *fiber.Ctx) error {
	n, err := h.paymentService.ExpireStale(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Stale payments expired", fiber.Map{"cancelled": n})
}

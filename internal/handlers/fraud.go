package handlers

import (
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/utils"
	"ventureflow/internal/utils/response"
	"ventureflow/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type FraudHandler struct {
	fraudService fraud.Service
}

func NewFraudHandler(fraudSvc fraud.Service) *FraudHandler {
	return &FraudHandler{fraudService: fraudSvc}
}

type fraudCheckRequest struct {
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount" validate:"dpositive"`
	Currency  string          `json:"currency" validate:"required,len=3"`
	Provider  string          `json:"provider" validate:"required"`
	IPAddress string          `json:"ipAddress" validate:"omitempty,ip"`
	UserAgent string          `json:"userAgent"`
	Location  *fraud.Location `json:"location"`
}

// Check scores a prospective payment. Users may only score their own attempts.
func (h *FraudHandler) Check(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req fraudCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	if req.UserID == "" {
		req.UserID = claims.UserID
	}
	if req.UserID != claims.UserID && !claims.IsAdmin() {
		return response.FromError(c, apperrors.Forbidden("cannot assess another user's payments"))
	}
	if req.IPAddress == "" {
		req.IPAddress = c.IP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Get(fiber.HeaderUserAgent)
	}

	assessment, err := h.fraudService.Assess(c.UserContext(), fraud.Attempt{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Provider:  req.Provider,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Location:  req.Location,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(assessment)
}

package handlers

import (
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
	"ventureflow/internal/services/escrow"
	"ventureflow/internal/utils"
	"ventureflow/internal/utils/response"
	"ventureflow/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type EscrowHandler struct {
	escrowService escrow.Service
}

func NewEscrowHandler(escrowSvc escrow.Service) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowSvc}
}

type createEscrowRequest struct {
	StartupID  string                   `json:"startupId" validate:"required"`
	InvestorID string                   `json:"investorId" validate:"required"`
	Amount     decimal.Decimal          `json:"amount" validate:"dpositive"`
	Currency   string                   `json:"currency" validate:"omitempty,oneof=ZAR USD zar usd"`
	TTLSeconds int64                    `json:"ttlSeconds" validate:"gte=0"`
	Condition  *models.ReleaseCondition `json:"condition"`
}

type walletIDRequest struct {
	ID string `json:"id" validate:"required"`
}

type requirementRequest struct {
	Requirement string `json:"requirement" validate:"required"`
}

// Create opens an escrow wallet between a startup and an investor. The caller must
// be one of them.
func (h *EscrowHandler) Create(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req createEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}
	if !claims.IsAdmin() && claims.UserID != req.StartupID && claims.UserID != req.InvestorID {
		return response.FromError(c, apperrors.ErrNotCounterparty)
	}

	wallet, err := h.escrowService.Create(c.UserContext(), escrow.CreateInput{
		StartupID:  req.StartupID,
		InvestorID: req.InvestorID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
		Condition:  req.Condition,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Escrow created", fiber.Map{
		"id":        wallet.ID,
		"status":    wallet.Status,
		"createdAt": wallet.CreatedAt,
		"expiresAt": wallet.ExpiresAt,
	})
}

func (h *EscrowHandler) Release(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req walletIDRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	wallet, err := h.escrowService.Release(c.UserContext(), req.ID, claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Escrow released", fiber.Map{"id": wallet.ID, "status": wallet.Status})
}

func (h *EscrowHandler) Reverse(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req walletIDRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	wallet, err := h.escrowService.Reverse(c.UserContext(), req.ID, claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Escrow reversed", fiber.Map{"id": wallet.ID, "status": wallet.Status})
}

// Get returns the wallet with its window progress. Reading a lapsed wallet expires it.
func (h *EscrowHandler) Get(c *fiber.Ctx) error {
	wallet, err := h.visibleWallet(c)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Escrow retrieved", fiber.Map{
		"wallet":   wallet,
		"progress": h.escrowService.Progress(wallet),
	})
}

func (h *EscrowHandler) Requirements(c *fiber.Ctx) error {
	wallet, err := h.visibleWallet(c)
	if err != nil {
		return response.FromError(c, err)
	}

	reqs, err := h.escrowService.Requirements(c.UserContext(), wallet.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requirements retrieved", reqs)
}

func (h *EscrowHandler) CompleteRequirement(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req requirementRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	record, err := h.escrowService.CompleteRequirement(c.UserContext(), c.Params("id"), req.Requirement, claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requirement completed", record)
}

func (h *EscrowHandler) Ledger(c *fiber.Ctx) error {
	wallet, err := h.visibleWallet(c)
	if err != nil {
		return response.FromError(c, err)
	}

	entries, err := h.escrowService.Ledger(c.UserContext(), wallet.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ledger retrieved", entries)
}

// Sweep expires lapsed wallets in one batch.
func (h *EscrowHandler) Sweep(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	n, err := h.escrowService.Sweep(c.UserContext(), limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Sweep completed", fiber.Map{"expired": n})
}

func (h *EscrowHandler) visibleWallet(c *fiber.Ctx) (*models.EscrowWallet, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	wallet, err := h.escrowService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && !wallet.IsCounterparty(claims.UserID) {
		return nil, apperrors.ErrNotCounterparty
	}
	return wallet, nil
}

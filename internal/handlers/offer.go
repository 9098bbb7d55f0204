package handlers

import (
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
	"ventureflow/internal/services/agreement"
	"ventureflow/internal/services/investment"
	"ventureflow/internal/utils"
	"ventureflow/internal/utils/pagination"
	"ventureflow/internal/utils/response"
	"ventureflow/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type OfferHandler struct {
	investmentService investment.Service
}

func NewOfferHandler(investmentSvc investment.Service) *OfferHandler {
	return &OfferHandler{investmentService: investmentSvc}
}

type proposeRequest struct {
	StartupID        string          `json:"startupId" validate:"required"`
	Amount           decimal.Decimal `json:"amount" validate:"dpositive"`
	Currency         string          `json:"currency" validate:"omitempty,oneof=ZAR USD zar usd"`
	EquityPercentage decimal.Decimal `json:"equityPercentage" validate:"dpositive"`
}

type declineRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type agreementRequest struct {
	StartupName  string `json:"startupName" validate:"max=200"`
	InvestorName string `json:"investorName" validate:"max=200"`
}

type payRequest struct {
	Provider   string `json:"provider" validate:"required,oneof=payfast bank stripe"`
	ItemName   string `json:"itemName" validate:"max=100"`
	PayerName  string `json:"payerName" validate:"max=100"`
	PayerEmail string `json:"payerEmail" validate:"omitempty,email"`
}

// Propose records an investor's offer to a startup.
func (h *OfferHandler) Propose(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if claims.Role != models.RoleInvestor {
		return response.FromError(c, apperrors.Forbidden("only investors can propose offers"))
	}

	var req proposeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	offer, err := h.investmentService.Propose(c.UserContext(), investment.ProposeInput{
		InvestorID:       claims.UserID,
		StartupID:        req.StartupID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		EquityPercentage: req.EquityPercentage,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Offer sent", offer)
}

func (h *OfferHandler) List(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	p := pagination.ParseFromRequest(c)
	offers, err := h.investmentService.List(c.UserContext(), claims.UserID, p.Limit, p.Offset)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(pagination.Response(p, offers, len(offers)))
}

func (h *OfferHandler) Get(c *fiber.Ctx) error {
	offer, err := h.visibleOffer(c)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offer retrieved", offer)
}

func (h *OfferHandler) Accept(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	offer, err := h.investmentService.Accept(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offer accepted", offer)
}

func (h *OfferHandler) Decline(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req declineRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request format")
		}
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	offer, err := h.investmentService.Decline(c.UserContext(), c.Params("id"), claims.UserID, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offer declined", offer)
}

// GenerateAgreement drafts the agreement from the accepted terms.
func (h *OfferHandler) GenerateAgreement(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req agreementRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request format")
		}
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	doc, err := h.investmentService.GenerateAgreement(c.UserContext(), c.Params("id"), claims.UserID, agreement.Parties{
		StartupName:  req.StartupName,
		InvestorName: req.InvestorName,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Agreement generated", doc)
}

// Agreement returns the document metadata as JSON, or the rendered text when the
// client asks for text/plain.
func (h *OfferHandler) Agreement(c *fiber.Ctx) error {
	offer, err := h.visibleOffer(c)
	if err != nil {
		return response.FromError(c, err)
	}

	doc, err := h.investmentService.Agreement(c.UserContext(), offer.ID)
	if err != nil {
		return response.FromError(c, err)
	}

	if c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextPlain) == fiber.MIMETextPlain {
		c.Set(fiber.HeaderContentType, doc.ContentType)
		c.Set("X-Content-Hash", doc.ContentHash)
		return c.Send(doc.Content)
	}
	return response.Success(c, "Agreement retrieved", fiber.Map{
		"agreement": doc,
		"content":   string(doc.Content),
		"intact":    agreement.Intact(doc),
	})
}

func (h *OfferHandler) Sign(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	offer, err := h.investmentService.Sign(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Agreement signed", offer)
}

// Pay starts or retries the payment for a signed offer.
func (h *OfferHandler) Pay(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	result, err := h.investmentService.InitiatePayment(c.UserContext(), c.Params("id"), claims.UserID, investment.PaymentRequest{
		Provider:   req.Provider,
		ItemName:   req.ItemName,
		PayerName:  req.PayerName,
		PayerEmail: req.PayerEmail,
		IPAddress:  c.IP(),
		UserAgent:  c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return response.FromError(c, err)
	}
	body := fiber.Map{
		"payment":  result.Intent,
		"redirect": result.Redirect,
	}
	if result.Assessment != nil {
		body["risk"] = result.Assessment.Risk
	}
	return response.Success(c, "Payment initiated", body)
}

// ConfirmTransfer is the startup confirming an off-band bank transfer arrived.
func (h *OfferHandler) ConfirmTransfer(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	offer, err := h.investmentService.ConfirmBankTransfer(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transfer confirmed", offer)
}

func (h *OfferHandler) visibleOffer(c *fiber.Ctx) (*models.InvestmentOffer, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	offer, err := h.investmentService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && !offer.IsCounterparty(claims.UserID) {
		return nil, apperrors.ErrNotCounterparty
	}
	return offer, nil
}

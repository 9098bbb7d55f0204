package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
	"ventureflow/internal/services/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const (
	payFastSandboxHost = "https://sandbox.payfast.co.za"
	payFastLiveHost    = "https://www.payfast.co.za"
	payFastAPIHost     = "https://api.payfast.co.za"
	payFastAPIVersion  = "v1"
)

// PayFast builds signed redirects to the PayFast hosted checkout and verifies its
// ITN callbacks.
type PayFast struct {
	cfg     config.PayFastConfig
	host    string
	apiHost string
	nowFn   func() time.Time
}

// PayFastOption customises a PayFast provider.
type PayFastOption func(*PayFast)

// WithHosts overrides the checkout and API hosts.
func WithHosts(host, apiHost string) PayFastOption {
	return func(p *PayFast) {
		p.host = host
		p.apiHost = apiHost
	}
}

// WithClock overrides the clock used for API timestamps.
func WithClock(nowFn func() time.Time) PayFastOption {
	return func(p *PayFast) {
		p.nowFn = nowFn
	}
}

func NewPayFast(cfg config.PayFastConfig, opts ...PayFastOption) *PayFast {
	p := &PayFast{
		cfg:     cfg,
		host:    payFastLiveHost,
		apiHost: payFastAPIHost,
		nowFn:   time.Now,
	}
	if cfg.Sandbox {
		p.host = payFastSandboxHost
	}
	if p.cfg.Timeout <= 0 {
		p.cfg.Timeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PayFast) Name() string {
	return models.ProviderPayFast
}

// ProcessURL is the hosted checkout endpoint.
func (p *PayFast) ProcessURL() string {
	return p.host + "/eng/process"
}

// Fields assembles the checkout fields for req. Blank values are left out.
func (p *PayFast) Fields(req Request) map[string]string {
	first, last := splitName(req.PayerName)
	fields := map[string]string{
		"merchant_id":   p.cfg.MerchantID,
		"merchant_key":  p.cfg.MerchantKey,
		"return_url":    p.cfg.ReturnURL,
		"cancel_url":    p.cfg.CancelURL,
		"notify_url":    p.cfg.NotifyURL,
		"name_first":    first,
		"name_last":     last,
		"email_address": req.PayerEmail,
		"m_payment_id":  req.Reference,
		"amount":        req.Amount.StringFixed(2),
		"item_name":     req.ItemName,
	}
	for i, s := range req.CustomStr {
		if i >= 5 {
			break
		}
		fields["custom_str"+strconv.Itoa(i+1)] = s
	}
	for i, n := range req.CustomInt {
		if i >= 5 {
			break
		}
		fields["custom_int"+strconv.Itoa(i+1)] = strconv.Itoa(n)
	}
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			delete(fields, k)
		}
	}
	return fields
}

func (p *PayFast) CreatePayment(ctx context.Context, req Request) (*Redirect, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if req.Reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}

	fields := p.Fields(req)
	sig := signature.Sign(fields, p.cfg.Passphrase)

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, v)
	}
	query.Set(signature.Field, sig)

	return &Redirect{
		URL:       p.ProcessURL() + "?" + query.Encode(),
		Reference: req.Reference,
	}, nil
}

// VerifyPayment checks the callback signature and, when enabled, asks PayFast to
// confirm the notification.
func (p *PayFast) VerifyPayment(ctx context.Context, params map[string]string) (bool, error) {
	payload, digest := signature.Split(params)
	if digest == "" || !signature.Verify(payload, p.cfg.Passphrase, digest) {
		return false, nil
	}
	if !p.cfg.ValidateRemote {
		return true, nil
	}
	return p.validateRemote(ctx, params)
}

func (p *PayFast) validateRemote(ctx context.Context, params map[string]string) (bool, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	agent := fiber.Post(p.host + "/eng/query/validate").
		ContentType(fiber.MIMEApplicationForm).
		BodyString(form.Encode()).
		Timeout(p.timeout(ctx))
	code, body, errs := agent.String()
	if err := transportError(p.Name(), "validate", code, errs); err != nil {
		return false, err
	}
	return strings.TrimSpace(body) == "VALID", nil
}

type payFastQueryResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   struct {
		Response struct {
			Status        string `json:"status"`
			PaymentStatus string `json:"payment_status"`
		} `json:"response"`
	} `json:"data"`
}

// GetPaymentStatus queries the PayFast API for a payment's current status.
func (p *PayFast) GetPaymentStatus(ctx context.Context, providerPaymentID string) (models.PaymentStatus, error) {
	if providerPaymentID == "" {
		return "", apperrors.Validation("provider payment id is required")
	}

	headers := map[string]string{
		"merchant-id": p.cfg.MerchantID,
		"version":     payFastAPIVersion,
		"timestamp":   p.nowFn().UTC().Format("2006-01-02T15:04:05-07:00"),
	}
	headers[signature.Field] = signature.Sign(headers, p.cfg.Passphrase)

	endpoint := p.apiHost + "/process/query/" + url.PathEscape(providerPaymentID)
	if p.cfg.Sandbox {
		endpoint += "?testing=true"
	}

	agent := fiber.Get(endpoint).Timeout(p.timeout(ctx))
	for k, v := range headers {
		agent.Set(k, v)
	}
	code, body, errs := agent.Bytes()
	if err := transportError(p.Name(), "status", code, errs); err != nil {
		return "", err
	}

	var resp payFastQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.NewProviderError(p.Name(), "status", false, fmt.Errorf("decode response: %w", err))
	}
	status := resp.Data.Response.PaymentStatus
	if status == "" {
		status = resp.Data.Response.Status
	}
	return mapPayFastStatus(status), nil
}

// ParseNotification reads the fields of an ITN callback that has already been verified.
func (p *PayFast) ParseNotification(params map[string]string) (Notification, error) {
	n := Notification{
		Reference:         params["m_payment_id"],
		ProviderPaymentID: params["pf_payment_id"],
		Status:            mapPayFastStatus(params["payment_status"]),
	}
	if n.Reference == "" {
		return n, apperrors.Validation("m_payment_id is required")
	}
	if gross := params["amount_gross"]; gross != "" {
		amount, err := decimal.NewFromString(gross)
		if err != nil {
			return n, apperrors.Validation("amount_gross is not a number")
		}
		n.AmountGross = amount
	}
	return n, nil
}

func (p *PayFast) timeout(ctx context.Context) time.Duration {
	timeout := p.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return timeout
}

func mapPayFastStatus(status string) models.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETE", "COMPLETED":
		return models.PaymentStatusCompleted
	case "FAILED":
		return models.PaymentStatusFailed
	case "CANCELLED":
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusPending
	}
}

// transportError classifies a fiber client result. Transport failures and 5xx
// responses are retriable, 4xx responses are not.
func transportError(provider, op string, code int, errs []error) error {
	if len(errs) > 0 {
		log.Printf("[gateway] %s %s transport error: %v", provider, op, errs[0])
		return apperrors.NewProviderError(provider, op, true, errs[0])
	}
	switch {
	case code >= 500:
		return apperrors.NewProviderError(provider, op, true, fmt.Errorf("upstream returned %d", code))
	case code >= 400:
		return apperrors.NewProviderError(provider, op, false, fmt.Errorf("upstream returned %d", code))
	}
	return nil
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i >= 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}

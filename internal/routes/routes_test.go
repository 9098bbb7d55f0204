package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ventureflow/internal/config"
	"ventureflow/internal/handlers"
	"ventureflow/internal/middleware"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
	"ventureflow/internal/services/agreement"
	"ventureflow/internal/services/escrow"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/services/gateway"
	"ventureflow/internal/services/investment"
	"ventureflow/internal/services/payment"
	"ventureflow/internal/services/signature"
	"ventureflow/internal/testutil"
	"ventureflow/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret     = "test-secret"
	passphrase = "jt7NOE43FZPn"
	investorID = "investor-1"
	startupID  = "startup-1"
)

type server struct {
	app    *fiber.App
	tokens map[string]string
}

func newServer(t *testing.T) *server {
	db := testutil.NewDB(t)
	store := repositories.NewStore(db)

	registry := gateway.NewRegistry()
	require.NoError(t, registry.Register(gateway.NewPayFast(config.PayFastConfig{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		Passphrase:  passphrase,
		Sandbox:     true,
		Timeout:     time.Second,
	})))
	require.NoError(t, registry.Register(gateway.NewBankTransfer(config.BankConfig{AccountNumber: "123"})))

	fraudCfg := config.FraudConfig{
		MaxAmount:        100000,
		MaxAttemptsHour:  5,
		MaxDistanceKm:    500,
		AllowedStartHour: 0,
		AllowedEndHour:   24,
	}
	fraudSvc := fraud.NewService(
		fraud.DefaultChecks(fraudCfg, time.UTC),
		fraud.NewStoreHistory(store.FraudLogs(), store.Payments()),
		store.FraudLogs(),
	)
	escrowSvc := escrow.NewService(store, config.EscrowConfig{DefaultTTL: 72 * time.Hour, SweepBatch: 50})
	paymentSvc := payment.NewService(store, registry, fraudSvc, config.PaymentsConfig{Currency: "ZAR"})
	investmentSvc := investment.NewService(store, escrowSvc, paymentSvc, agreement.NewGenerator())

	app := fiber.New()
	SetupRoutes(app, Handlers{
		Escrow:  handlers.NewEscrowHandler(escrowSvc),
		Offer:   handlers.NewOfferHandler(investmentSvc),
		Payment: handlers.NewPaymentHandler(paymentSvc, investmentSvc),
		Fraud:   handlers.NewFraudHandler(fraudSvc),
		Health:  handlers.NewHealthHandler(db, nil),
	}, middleware.NewAuthMiddleware(secret))

	s := &server{app: app, tokens: map[string]string{}}
	for user, role := range map[string]string{
		investorID: models.RoleInvestor,
		startupID:  models.RoleStartup,
		"admin-1":  models.RoleAdmin,
		"intruder": models.RoleInvestor,
	} {
		token, err := utils.GenerateToken(secret, models.UserClaims{UserID: user, Role: role}, time.Hour)
		require.NoError(t, err)
		s.tokens[user] = token
	}
	return s
}

type result struct {
	status int
	body   map[string]interface{}
	raw    string
}

func (s *server) do(t *testing.T, method, path, user string, body interface{}) result {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.tokens[user])
	}
	return s.send(t, req)
}

func (s *server) send(t *testing.T, req *http.Request) result {
	t.Helper()

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	r := result{status: resp.StatusCode, raw: string(raw)}
	_ = json.Unmarshal(raw, &r.body)
	return r
}

func data(t *testing.T, r result) map[string]interface{} {
	t.Helper()
	d, ok := r.body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", r.raw)
	return d
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, fiber.StatusUnauthorized, s.do(t, fiber.MethodGet, "/api/offers", "", nil).status)

	req := httptest.NewRequest(fiber.MethodGet, "/api/offers", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	assert.Equal(t, fiber.StatusUnauthorized, s.send(t, req).status)

	assert.Equal(t, fiber.StatusForbidden, s.do(t, fiber.MethodPost, "/api/admin/escrow/sweep", investorID, nil).status)

	r := s.do(t, fiber.MethodPost, "/api/admin/escrow/sweep", "admin-1", nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.EqualValues(t, 0, data(t, r)["expired"])
}

func TestEscrowEndpoints(t *testing.T) {
	s := newServer(t)

	r := s.do(t, fiber.MethodPost, "/api/escrow/create", investorID, fiber.Map{
		"startupId":  startupID,
		"investorId": investorID,
		"amount":     "1500.00",
		"ttlSeconds": 3600,
	})
	require.Equal(t, fiber.StatusCreated, r.status, r.raw)
	created := data(t, r)
	id := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.NotEmpty(t, created["expiresAt"])

	r = s.do(t, fiber.MethodPost, "/api/escrow/create", investorID, fiber.Map{
		"startupId":  startupID,
		"investorId": investorID,
		"amount":     "0",
	})
	assert.Equal(t, fiber.StatusBadRequest, r.status)
	assert.Equal(t, "VALIDATION_ERROR", r.body["code"])

	r = s.do(t, fiber.MethodGet, "/api/escrow/"+id, startupID, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Contains(t, data(t, r), "progress")

	assert.Equal(t, fiber.StatusForbidden, s.do(t, fiber.MethodGet, "/api/escrow/"+id, "intruder", nil).status)
	assert.Equal(t, fiber.StatusNotFound, s.do(t, fiber.MethodGet, "/api/escrow/missing", investorID, nil).status)

	r = s.do(t, fiber.MethodPost, "/api/escrow/release", investorID, fiber.Map{"id": id})
	assert.Equal(t, fiber.StatusConflict, r.status, r.raw)

	for _, req := range []string{escrow.RequirementAgreementSigned, escrow.RequirementPaymentCaptured} {
		r = s.do(t, fiber.MethodPost, "/api/escrow/"+id+"/requirements", startupID, fiber.Map{"requirement": req})
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
	}

	r = s.do(t, fiber.MethodPost, "/api/escrow/release", investorID, fiber.Map{"id": id})
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Equal(t, "released", data(t, r)["status"])

	r = s.do(t, fiber.MethodPost, "/api/escrow/release", investorID, fiber.Map{"id": id})
	assert.Equal(t, fiber.StatusConflict, r.status)
	assert.Equal(t, "STATE_CONFLICT", r.body["code"])

	r = s.do(t, fiber.MethodPost, "/api/escrow/reverse", investorID, fiber.Map{"id": id})
	assert.Equal(t, fiber.StatusConflict, r.status)

	r = s.do(t, fiber.MethodGet, "/api/escrow/"+id+"/ledger", investorID, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Len(t, r.body["data"], 2)
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)

	r := s.do(t, fiber.MethodPost, "/api/offers", startupID, fiber.Map{
		"startupId": investorID, "amount": "1500", "equityPercentage": "5",
	})
	assert.Equal(t, fiber.StatusForbidden, r.status)

	r = s.do(t, fiber.MethodPost, "/api/offers", investorID, fiber.Map{
		"startupId": startupID, "amount": "1500.00", "currency": "ZAR", "equityPercentage": "5",
	})
	require.Equal(t, fiber.StatusCreated, r.status, r.raw)
	offerID := data(t, r)["id"].(string)
	base := "/api/offers/" + offerID

	require.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodPost, base+"/accept", startupID, nil).status)
	require.Equal(t, fiber.StatusCreated, s.do(t, fiber.MethodPost, base+"/agreement", investorID, fiber.Map{"startupName": "Acme"}).status)

	req := httptest.NewRequest(fiber.MethodGet, base+"/agreement", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.tokens[startupID])
	req.Header.Set(fiber.HeaderAccept, fiber.MIMETextPlain)
	text := s.send(t, req)
	require.Equal(t, fiber.StatusOK, text.status)
	assert.Contains(t, text.raw, "Acme")

	require.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodPost, base+"/sign", investorID, nil).status)
	r = s.do(t, fiber.MethodPost, base+"/sign", startupID, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Equal(t, "signed", data(t, r)["status"])

	assert.Equal(t, fiber.StatusForbidden, s.do(t, fiber.MethodPost, base+"/pay", startupID, fiber.Map{"provider": "payfast"}).status)

	r = s.do(t, fiber.MethodPost, base+"/pay", investorID, fiber.Map{"provider": "payfast", "itemName": "Investment in Acme"})
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	redirect := data(t, r)["redirect"].(map[string]interface{})
	assert.Contains(t, redirect["url"], "sandbox.payfast.co.za")
	paymentID := data(t, r)["payment"].(map[string]interface{})["id"].(string)

	// Tampered notification is rejected without touching state.
	form := notification(offerID, "COMPLETE")
	form.Set("amount_gross", "1.00")
	assert.Equal(t, fiber.StatusBadRequest, s.notify(t, form).status)

	r = s.do(t, fiber.MethodGet, base, investorID, nil)
	assert.Equal(t, "payment", data(t, r)["status"])

	require.Equal(t, fiber.StatusOK, s.notify(t, notification(offerID, "COMPLETE")).status)

	r = s.do(t, fiber.MethodGet, base, startupID, nil)
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Equal(t, "completed", data(t, r)["status"])

	r = s.do(t, fiber.MethodGet, "/api/payments/"+paymentID, investorID, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Equal(t, "completed", data(t, r)["payment"].(map[string]interface{})["status"])
	assert.Equal(t, fiber.StatusNotFound, s.do(t, fiber.MethodGet, "/api/payments/"+paymentID, "intruder", nil).status)

	r = s.do(t, fiber.MethodGet, "/api/offers?limit=5", investorID, nil)
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Len(t, r.body["data"], 1)
}

func TestFraudCheck(t *testing.T) {
	s := newServer(t)

	r := s.do(t, fiber.MethodPost, "/api/fraud/check", investorID, fiber.Map{
		"amount": "250000", "currency": "ZAR", "provider": "payfast", "ipAddress": "196.21.0.1",
	})
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.EqualValues(t, 25, r.body["score"])
	assert.Equal(t, "low", r.body["risk"])

	r = s.do(t, fiber.MethodPost, "/api/fraud/check", investorID, fiber.Map{
		"userId": startupID, "amount": "10", "currency": "ZAR", "provider": "payfast",
	})
	assert.Equal(t, fiber.StatusForbidden, r.status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	r := s.do(t, fiber.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Equal(t, "ok", r.body["status"])

	r = s.do(t, fiber.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Contains(t, r.raw, "http_requests_total")
}

func (s *server) notify(t *testing.T, form url.Values) result {
	req := httptest.NewRequest(fiber.MethodPost, "/api/payments/notify", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return s.send(t, req)
}

func notification(offerID, status string) url.Values {
	fields := map[string]string{
		"m_payment_id":   offerID,
		"pf_payment_id":  "1089250",
		"payment_status": status,
		"amount_gross":   "1500.00",
	}
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set(signature.Field, signature.Sign(fields, passphrase))
	return form
}

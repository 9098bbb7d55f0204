// Package agreement renders share-purchase agreements from frozen offer terms.
package agreement

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"text/template"
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"

	"github.com/shopspring/decimal"
)

const ContentType = "text/plain; charset=utf-8"

// Parties carries the display names printed on the document.
type Parties struct {
	StartupName  string
	InvestorName string
}

// Generator drafts the agreement document for an offer.
type Generator interface {
	Generate(ctx context.Context, offer *models.InvestmentOffer, parties Parties) (*models.AgreementDocument, error)
}

type terms struct {
	OfferID          string
	StartupID        string
	StartupName      string
	InvestorID       string
	InvestorName     string
	Amount           string
	Currency         string
	EquityPercentage string
	Date             string
}

const defaultTemplate = `SHARE PURCHASE AGREEMENT

Reference: {{.OfferID}}
Date: {{.Date}}

BETWEEN
  {{.StartupName}} ({{.StartupID}}), the "Company"
AND
  {{.InvestorName}} ({{.InvestorID}}), the "Investor"

1. SUBSCRIPTION
The Investor subscribes for shares representing {{.EquityPercentage}}% of the issued
share capital of the Company for a total consideration of {{.Currency}} {{.Amount}}.

2. ESCROW
The consideration is held in escrow and released to the Company only once this
agreement has been signed by both parties and payment has been captured. If the escrow
window lapses or either party cancels, the consideration is returned to the Investor and
this agreement lapses.

3. TERMS
The amount and equity percentage above are final. Any change requires a new offer.

Signed for the Company:  ______________________
Signed by the Investor:  ______________________
`

type templateGenerator struct {
	tmpl  *template.Template
	nowFn func() time.Time
}

// Option customises the generator.
type Option func(*templateGenerator)

func WithClock(nowFn func() time.Time) Option {
	return func(g *templateGenerator) { g.nowFn = nowFn }
}

// WithTemplate replaces the built-in document body. The template receives the
// offer terms as strings.
func WithTemplate(tmpl *template.Template) Option {
	return func(g *templateGenerator) { g.tmpl = tmpl }
}

// NewGenerator returns a Generator backed by text/template.
func NewGenerator(opts ...Option) Generator {
	g := &templateGenerator{
		tmpl:  template.Must(template.New("agreement").Option("missingkey=error").Parse(defaultTemplate)),
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *templateGenerator) Generate(ctx context.Context, offer *models.InvestmentOffer, parties Parties) (*models.AgreementDocument, error) {
	if err := ValidateTerms(offer.Amount, offer.EquityPercentage); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := g.nowFn().UTC()
	data := terms{
		OfferID:          offer.ID,
		StartupID:        offer.StartupID,
		StartupName:      fallback(parties.StartupName, offer.StartupID),
		InvestorID:       offer.InvestorID,
		InvestorName:     fallback(parties.InvestorName, offer.InvestorID),
		Amount:           offer.Amount.StringFixed(2),
		Currency:         offer.Currency,
		EquityPercentage: offer.EquityPercentage.StringFixed(2),
		Date:             now.Format("2 January 2006"),
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render agreement: %w", err)
	}

	content := buf.Bytes()
	return &models.AgreementDocument{
		OfferID:          offer.ID,
		StartupID:        offer.StartupID,
		InvestorID:       offer.InvestorID,
		Amount:           offer.Amount,
		Currency:         offer.Currency,
		EquityPercentage: offer.EquityPercentage,
		ContentType:      ContentType,
		Content:          content,
		ContentHash:      Hash(content),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Hash returns the hex SHA-256 digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Intact reports whether the stored content still matches its hash.
func Intact(doc *models.AgreementDocument) bool {
	return doc.ContentHash == Hash(doc.Content)
}

var hundred = decimal.NewFromInt(100)

// ValidateTerms checks the amount and equity bounds of an offer.
func ValidateTerms(amount, equity decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}
	if !equity.IsPositive() || equity.GreaterThan(hundred) {
		return apperrors.Validation("equity percentage must be greater than 0 and at most 100")
	}
	return nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one database so that writes spanning
// several tables (wallet plus payment intent, for instance) commit together.
type Store interface {
	Offers() OfferRepository
	Escrow() EscrowRepository
	Payments() PaymentRepository
	Agreements() AgreementRepository
	FraudLogs() FraudLogRepository

	// ExecuteInTransaction runs fn against a Store bound to a single transaction.
	// Inside fn, only the Store passed in may be used.
	ExecuteInTransaction(ctx context.Context, fn func(Store) error) error
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Offers() OfferRepository         { return &offerRepository{db: s.db} }
func (s *store) Escrow() EscrowRepository        { return &escrowRepository{db: s.db} }
func (s *store) Payments() PaymentRepository     { return &paymentRepository{db: s.db} }
func (s *store) Agreements() AgreementRepository { return &agreementRepository{db: s.db} }
func (s *store) FraudLogs() FraudLogRepository   { return &fraudLogRepository{db: s.db} }

func (s *store) ExecuteInTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	})
}

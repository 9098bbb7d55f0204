package errors

var (
	ErrInvalidAmount = &DomainError{
		Code:    CodeValidation,
		Message: "amount must be greater than zero",
	}
	ErrWalletNotFound = &DomainError{
		Code:    CodeNotFound,
		Message: "escrow wallet not found",
	}
	ErrWalletClosed = &DomainError{
		Code:    CodeStateConflict,
		Message: "escrow wallet is no longer pending",
	}
	ErrWalletExpired = &DomainError{
		Code:    CodeStateConflict,
		Message: "escrow window has lapsed",
	}
	ErrConditionNotMet = &DomainError{
		Code:    CodeStateConflict,
		Message: "escrow release condition is not met",
	}
	ErrPaymentNotCaptured = &DomainError{
		Code:    CodeStateConflict,
		Message: "payment has not been captured",
	}
	ErrOfferNotFound = &DomainError{
		Code:    CodeNotFound,
		Message: "investment offer not found",
	}
	ErrPaymentNotFound = &DomainError{
		Code:    CodeNotFound,
		Message: "payment not found",
	}
	ErrNotCounterparty = &DomainError{
		Code:    CodeForbidden,
		Message: "only the investor or the startup can perform this action",
	}
)

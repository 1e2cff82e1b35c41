package pool

import "errors"

// Sentinel errors for operations rejected by business rules. The HTTP
// layer maps these to status codes; the engine never persists a
// rejected operation.
var (
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolExists            = errors.New("pool already exists")
	ErrInvalidTerms          = errors.New("premium and payout must be non-negative")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrIncorrectPremium      = errors.New("payment does not match premium")
	ErrPolicyNotFound        = errors.New("policy not found")
	ErrAlreadyClaimed        = errors.New("policy already claimed")
	ErrInsufficientPoolFunds = errors.New("insufficient pool funds for payout")
)

// Package apperrors collects the sentinel errors returned across the
// exchange/execution boundary, so callers can branch with errors.Is
// instead of string-matching.
package apperrors

import "errors"

// Standardized exchange/execution errors.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")

	// ErrConnectivityTimeout marks a request that exceeded the
	// ExecutionManager's timeout policy without a response, distinct from a
	// request the exchange actively rejected.
	ErrConnectivityTimeout = errors.New("exchange request timed out")
	// ErrIndexMismatch marks an exchange response that refers to an
	// instrument or exchange index the engine never built through
	// instrument.Builder.
	ErrIndexMismatch = errors.New("unknown exchange or instrument index")
)

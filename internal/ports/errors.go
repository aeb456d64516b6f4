package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Domain Validation Errors (never retried, surfaced directly)
	ErrUnauthenticated   = errors.New("caller is not authenticated")
	ErrRoomNotFound      = errors.New("room not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrInsufficientFunds = errors.New("insufficient available virtual currency")
	ErrInvalidPercentage = errors.New("close percentage must be between 0 and 100 exclusive")
	ErrPositionClosed    = errors.New("position is already closed")

	// Transient Transport Errors (eligible for bounded retry)
	ErrFeedUnavailable  = errors.New("market data feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to remote service")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// Terminal form of a transient error once the retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// IsTransient reports whether err belongs to the retryable class. Domain
// validation errors are deliberately excluded: retrying them cannot succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFeedUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrDBConnection)
}

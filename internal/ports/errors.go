package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard
// errors so callers can branch with errors.Is while the original cause stays
// available for logging.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Request Validation Errors
	// Every rejected input additionally wraps ErrInvalidRequest.
	ErrInvalidRequest   = errors.New("invalid request parameters or format")
	ErrInvalidSymbol    = errors.New("symbol cannot be empty")
	ErrInvalidInterval  = errors.New("unsupported timeframe")
	ErrInvalidDateRange = errors.New("end date must not be before start date")

	// Data Lifecycle Errors
	ErrNotFound         = errors.New("no data found for the requested range")
	ErrValidationFailed = errors.New("market data validation failed")
	ErrFetchExhausted   = errors.New("fetch retries exhausted")

	// Data Source Specific Errors
	ErrSourceUnavailable    = errors.New("data source API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the data source")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("data source authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
	ErrNoRepository = errors.New("no repository configured")
)

package custody

import "fmt"

// ErrorCode is a domain error code used by custody operation rejections.
type ErrorCode string

const (
	// ErrorUnauthorizedOwner indicates the caller is not the current owner.
	ErrorUnauthorizedOwner ErrorCode = "0001"
	// ErrorUnauthorizedHeir indicates the caller is not the current heir.
	ErrorUnauthorizedHeir ErrorCode = "0002"
	// ErrorInvalidSuccessor indicates a supplied heir candidate is null,
	// equals the owner, or (at claim time) equals the claimant.
	ErrorInvalidSuccessor ErrorCode = "0003"
	// ErrorInsufficientBalance indicates the withdraw amount exceeds the
	// current balance.
	ErrorInsufficientBalance ErrorCode = "0018"
	// ErrorOwnerStillActive indicates a claim was attempted before the
	// inactivity period elapsed.
	ErrorOwnerStillActive ErrorCode = "0041"
	// ErrorReentrantCall indicates withdraw was invoked while a withdraw for
	// the same record was already executing.
	ErrorReentrantCall ErrorCode = "0042"
	// ErrorTransferFailed indicates the outbound value transfer during
	// withdraw did not complete; the whole call is rolled back.
	ErrorTransferFailed ErrorCode = "0043"
	// ErrorInvalidCall indicates a zero-value call carrying payload data at
	// the deposit boundary.
	ErrorInvalidCall ErrorCode = "0044"
	// ErrorInvalidInput indicates request input validation failed.
	ErrorInvalidInput ErrorCode = "1001"
)

// DomainError represents a structured custody domain rejection.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

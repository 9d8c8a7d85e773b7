package shared

import "errors"

// Business failure taxonomy shared across domain packages. Domain packages
// wrap these with context; handlers map them onto HTTP problem responses.
var (
	// ErrNotFound indicates a referenced order/lot/invoice/product is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change not permitted from the current state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a plan or deduction cannot satisfy the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAmountExceedsLimit indicates a payment or deposit exceeds the remaining debt or total.
	ErrAmountExceedsLimit = errors.New("amount exceeds limit")
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate resource or an already-processed request.
	ErrConflict = errors.New("conflict")
)

// UserSafeMessage returns a message suitable for API consumers. Unknown
// errors collapse to a generic message so internals never leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "the requested resource does not exist"
	case errors.Is(err, ErrInvalidTransition):
		return "the requested status change is not allowed from the current state"
	case errors.Is(err, ErrInsufficientStock):
		return "there is not enough stock to satisfy the request"
	case errors.Is(err, ErrAmountExceedsLimit):
		return "the amount exceeds the remaining balance"
	case errors.Is(err, ErrValidation):
		return "the request payload is invalid"
	case errors.Is(err, ErrConflict):
		return "the resource already exists or was already processed"
	default:
		return "an internal error occurred"
	}
}

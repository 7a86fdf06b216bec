package wallet

import "errors"

var (
	// ErrLockConflict means another mutation for the same user is in flight.
	// Callers should retry later.
	ErrLockConflict = errors.New("another wallet transaction is in progress")

	ErrAccountNotFound           = errors.New("account not found")
	ErrInsufficientFunds         = errors.New("insufficient balance")
	ErrNoPendingCashback         = errors.New("no pending cashback to convert")
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrTooManyPendingWithdrawals = errors.New("too many pending withdrawal requests")

	// ErrDuplicateCredit is returned by Repository.Apply for a credit
	// reference that was already applied
	ErrDuplicateCredit = errors.New("credit already applied")
)

// ValidationError reports a bad request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsClientError reports whether err is caused by the request rather than
// the system
func IsClientError(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNoPendingCashback) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrTooManyPendingWithdrawals)
}

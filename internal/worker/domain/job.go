package domain

// Kind selects the handler for a job within its queue
type Kind string

// Email kinds
const (
	KindWelcome             Kind = "welcome"
	KindOTP                 Kind = "otp"
	KindOrderConfirmation   Kind = "order_confirmation"
	KindCashbackConfirmed   Kind = "cashback_confirmed"
	KindWithdrawalRequested Kind = "withdrawal_requested"
	KindWithdrawalProcessed Kind = "withdrawal_processed"
	KindPasswordReset       Kind = "password_reset"
	KindGiftCardDelivery    Kind = "gift_card_delivery"
)

// SMS-only kinds. otp, order_confirmation and the withdrawal kinds are
// shared with email.
const (
	KindCashbackCredited Kind = "cashback_credited"
)

// Cashback queue kinds
const (
	KindCashbackCredit Kind = "cashback_credit"
)

// Outcome is the handler's verdict on one job
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is returned by every job handler. Retry sends the job back to the
// pending tail until its attempts run out; Fatal dead-letters it at once.
type Result struct {
	Outcome Outcome
	Err     error
}

// Success reports a completed job
func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

// Retry reports a failure worth another attempt
func Retry(err error) Result {
	return Result{Outcome: OutcomeRetry, Err: err}
}

// Fatal reports a failure that no retry can fix
func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: err}
}

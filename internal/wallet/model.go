package wallet

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryCashbackConverted EntryType = "cashback_converted"
	EntryWithdrawal        EntryType = "withdrawal"
)

// Method is a payout method for withdrawals
type Method string

const (
	MethodUPI          Method = "upi"
	MethodBankTransfer Method = "bank_transfer"
)

// WithdrawalPending is the status of a freshly requested withdrawal
const WithdrawalPending = "pending"

// Account is a user's wallet plus the contact details used for notifications
type Account struct {
	UserID          int64           `db:"user_id"`
	Email           string          `db:"email"`
	Mobile          string          `db:"mobile"`
	Name            string          `db:"name"`
	Balance         decimal.Decimal `db:"wallet_balance"`
	PendingCashback decimal.Decimal `db:"pending_cashback"`
}

// DisplayName falls back to the mailbox part of the email
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

// LedgerEntry is an append-only record of a balance change. Amount is signed.
type LedgerEntry struct {
	ID           int64           `db:"id"`
	UserID       int64           `db:"user_id"`
	Amount       decimal.Decimal `db:"amount"`
	Type         EntryType       `db:"type"`
	Reference    string          `db:"reference"`
	Description  string          `db:"description"`
	BalanceAfter decimal.Decimal `db:"balance_after"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Withdrawal is a payout request held against the wallet balance
type Withdrawal struct {
	ID                int64           `db:"id"`
	UserID            int64           `db:"user_id"`
	Amount            decimal.Decimal `db:"amount"`
	Method            Method          `db:"method"`
	Status            string          `db:"status"`
	UPIID             string          `db:"upi_id"`
	BankAccountNumber string          `db:"bank_account_number"`
	BankIFSC          string          `db:"bank_ifsc"`
	BankAccountName   string          `db:"bank_account_name"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Mutation is applied atomically by a Repository. Deltas are added to the
// stored balances; the mutation is rejected if either would go negative.
type Mutation struct {
	UserID       int64
	BalanceDelta decimal.Decimal
	PendingDelta decimal.Decimal
	Entry        *LedgerEntry
	Withdrawal   *Withdrawal
	// CreditRef makes the mutation idempotent: a second mutation with the
	// same reference fails with ErrDuplicateCredit
	CreditRef string
	At        time.Time
}

// Applied holds the balances after a mutation
type Applied struct {
	Balance         decimal.Decimal
	PendingCashback decimal.Decimal
	WithdrawalID    int64
}

// ConvertResult is returned by ConvertPendingCashback
type ConvertResult struct {
	Converted        decimal.Decimal `json:"converted_amount"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	RemainingPending decimal.Decimal `json:"remaining_pending"`
}

// WithdrawalRequest asks for a payout from the wallet balance
type WithdrawalRequest struct {
	UserID            int64
	Amount            decimal.Decimal
	Method            Method
	UPIID             string
	BankAccountNumber string
	BankIFSC          string
	BankAccountName   string
}

// WithdrawalResult is returned by RequestWithdrawal
type WithdrawalResult struct {
	WithdrawalID int64           `json:"withdrawal_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       Method          `json:"method"`
	Status       string          `json:"status"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

package reconcile

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repository lookups with no match
var ErrNotFound = errors.New("not found")

// Status is the internal transaction status
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// statusMap translates partner vocabularies. Anything missing is pending.
var statusMap = map[string]Status{
	"pending":   StatusPending,
	"approved":  StatusConfirmed,
	"confirmed": StatusConfirmed,
	"rejected":  StatusRejected,
	"declined":  StatusRejected,
}

// NormalizeStatus maps a partner status onto pending, confirmed or rejected
func NormalizeStatus(native string) Status {
	if s, ok := statusMap[strings.ToLower(strings.TrimSpace(native))]; ok {
		return s
	}
	return StatusPending
}

// Terminal reports whether no further transition is accepted
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// Transaction is an imported partner transaction
type Transaction struct {
	ID              int64           `db:"id"`
	Network         string          `db:"network"`
	ExternalID      string          `db:"external_transaction_id"`
	Status          Status          `db:"status"`
	Amount          decimal.Decimal `db:"amount"`
	ClickID         *int64          `db:"click_id"`
	UserID          *int64          `db:"user_id"`
	MerchantID      *int64          `db:"merchant_id"`
	TransactionDate *time.Time      `db:"transaction_date"`
	ImportedAt      time.Time       `db:"imported_at"`
	ConfirmedAt     *time.Time      `db:"confirmed_at"`
}

// Click links an outbound click to the user who made it
type Click struct {
	ID              int64     `db:"id"`
	ExternalClickID string    `db:"external_click_id"`
	UserID          int64     `db:"user_id"`
	MerchantID      *int64    `db:"merchant_id"`
	OfferID         *int64    `db:"offer_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// Outcome describes what reconciling one record did
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeConflict  Outcome = "conflict"
)

// Summary aggregates one reconciliation run
type Summary struct {
	Imported     int `json:"imported"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	Conflicts    int `json:"conflicts"`
	TotalFetched int `json:"total_fetched"`
	Errors       int `json:"errors"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeImported:
		s.Imported++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeConflict:
		s.Conflicts++
	}
}

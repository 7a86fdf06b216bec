// Package partner defines the normalized record every affiliate-network
// client must produce, and a generic paginated HTTP source.
package partner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one partner transaction in normalized form. Status is the
// partner's own vocabulary; the reconciler maps it.
type Record struct {
	ExternalID      string          `json:"external_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	MerchantExtID   string          `json:"merchant_ext_id"`
	ClickExtID      string          `json:"click_ext_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Network         string          `json:"network"`
}

// Source fetches records changed since a point in time. A Source may return
// the records it managed to fetch together with an error.
type Source interface {
	Network() string
	Fetch(ctx context.Context, since time.Time) ([]Record, error)
}

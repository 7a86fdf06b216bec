package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type EnqueueJobRequest struct {
	Type   string                 `json:"type" binding:"required"`
	Target string                 `json:"target" binding:"required"`
	Data   map[string]interface{} `json:"data"`
}

type EnqueueJobResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

type QueueStatsDTO struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	DeadLetter int64  `json:"dead_letter"`
}

type ListDeadLettersRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListDeadLettersResponse struct {
	Queue      string          `json:"queue"`
	Total      int             `json:"total"`
	Entries    []DeadLetterDTO `json:"entries"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// DeadLetterDTO carries the entry's position, which is what retry takes
type DeadLetterDTO struct {
	Index      int                    `json:"index"`
	JobID      string                 `json:"job_id"`
	Type       string                 `json:"type"`
	Target     string                 `json:"target"`
	Attempts   int                    `json:"attempts"`
	EnqueuedAt *time.Time             `json:"enqueued_at,omitempty"`
	FailedAt   *time.Time             `json:"failed_at,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type ClearDeadLettersResponse struct {
	Queue   string `json:"queue"`
	Cleared int64  `json:"cleared"`
}

type TriggerSyncRequest struct {
	Since *time.Time `json:"since"`
}

type ConvertCashbackRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type WithdrawRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	Method            string          `json:"method" binding:"required,oneof=upi bank_transfer"`
	UPIID             string          `json:"upi_id"`
	BankAccountNumber string          `json:"bank_account_number"`
	BankIFSC          string          `json:"bank_ifsc"`
	BankAccountName   string          `json:"bank_account_name"`
}

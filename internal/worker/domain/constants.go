package domain

import "time"

// Queue names
const (
	QueueEmail    = "email"
	QueueSMS      = "sms"
	QueueCashback = "cashback"
)

// Worker loop defaults
const (
	// MaxAttempts is the number of failed claims after which a job is dead-lettered
	MaxAttempts = 3

	DefaultPollTimeout = 2 * time.Second
	DefaultIdleSleep   = 100 * time.Millisecond
)

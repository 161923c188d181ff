package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus tracks the lifecycle of one externally-triggered run.
// Transitions are monotonic: pending -> processing -> completed | failed.
type ExecutionStatus string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusProcessing ExecutionStatus = "processing"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
)

// NewSnapshot carries the fields of a snapshot about to be persisted.
// Identifier and fetch timestamp are assigned by the database.
type NewSnapshot struct {
	Source  string
	BTCUSD  *decimal.Decimal
	ETHUSD  *decimal.Decimal
	EURRate *decimal.Decimal
	GBPRate *decimal.Decimal
	JPYRate *decimal.Decimal
	RawData json.RawMessage
}

// PriceSnapshot is one immutable row of the append-only snapshot log.
type PriceSnapshot struct {
	ID        int64
	FetchedAt time.Time
	Source    string
	BTCUSD    *decimal.Decimal
	ETHUSD    *decimal.Decimal
	EURRate   *decimal.Decimal
	GBPRate   *decimal.Decimal
	JPYRate   *decimal.Decimal
	RawData   json.RawMessage
}

// PriceAlert records a threshold breach between two consecutive snapshots.
type PriceAlert struct {
	ID            int64
	Asset         string
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	ChangePct     decimal.Decimal
	SnapshotID    int64
	CreatedAt     time.Time
}

// ExecutionRecord is the bookkeeping row for one webhook-triggered run.
// ScheduledAt and FiredAt carry the caller's payload values verbatim.
type ExecutionRecord struct {
	ExecutionID  string
	JobID        string
	ScheduledAt  *string
	FiredAt      *string
	Status       ExecutionStatus
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

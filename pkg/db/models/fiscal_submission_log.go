package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	FiscalOutcomeSuccess = "success"
	FiscalOutcomeFailed  = "failed"
)

// FiscalSubmissionLog is the append-only audit trail of fiscal submission
// attempts. Rows are never mutated; the invoice's fiscal status is the
// mutable pointer.
type FiscalSubmissionLog struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null"`
	Attempt   int             `gorm:"column:attempt;not null"`
	Request   json.RawMessage `gorm:"column:request;type:jsonb"`
	Response  json.RawMessage `gorm:"column:response;type:jsonb"`
	Outcome   string          `gorm:"column:outcome;not null"`
	Error     *string         `gorm:"column:error"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

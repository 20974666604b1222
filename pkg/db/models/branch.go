package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Branch is a physical restaurant location. Its tax rate and fiscal identity
// drive the monetary and fiscal computations for every order it owns.
type Branch struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string          `gorm:"column:name;not null"`
	TaxRate        decimal.Decimal `gorm:"column:tax_rate;type:numeric(5,4);not null;default:0"`
	FiscalEnabled  bool            `gorm:"column:fiscal_enabled;not null;default:false"`
	PRAPOSID       *string         `gorm:"column:pra_pos_id"`
	PRANTN         *string         `gorm:"column:pra_ntn"`
	ManagerPINHash *string         `gorm:"column:manager_pin_hash"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Package catalog serves the reference data terminals cache locally: branch
// settings, menu, tables and customers. Terminals pull the full set at
// provisioning and incremental deltas afterwards.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/db/models"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
)

// Service exposes the bootstrap pull and the customer upload.
type Service interface {
	Bootstrap(ctx context.Context, query BootstrapQuery) (*BootstrapResult, error)
	RegisterCustomer(ctx context.Context, input RegisterCustomerInput) (*RegisterCustomerResult, error)
}

// RegisterCustomerInput carries a terminal's customer upload. The ID is the
// client-generated UUID used as the idempotency key.
type RegisterCustomerInput struct {
	ID       uuid.UUID `json:"id" validate:"required"`
	BranchID uuid.UUID `json:"branch_id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Phone    *string   `json:"phone,omitempty"`
	Email    *string   `json:"email,omitempty"`
}

// RegisterCustomerResult reports the reconciled customer. Replayed is true
// when the upload matched an existing row.
type RegisterCustomerResult struct {
	Customer *models.Customer
	Replayed bool
}

// BootstrapQuery selects the branch and an optional incremental cursor.
// A nil Since returns the full reference set.
type BootstrapQuery struct {
	BranchID uuid.UUID
	Since    *time.Time
}

// BranchSnapshot is the branch configuration a terminal needs to price and
// finalize orders offline. Credentials and hashes never leave the server.
type BranchSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	FiscalEnabled bool            `json:"fiscal_enabled"`
}

// BootstrapResult is the reference payload returned to the terminal. The
// terminal stores GeneratedAt and sends it back as the next Since cursor.
type BootstrapResult struct {
	Branch      BranchSnapshot       `json:"branch"`
	MenuItems   []models.MenuItem    `json:"menu_items"`
	Tables      []models.DiningTable `json:"tables"`
	Customers   []models.Customer    `json:"customers"`
	GeneratedAt time.Time            `json:"generated_at"`
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Bootstrap(ctx context.Context, query BootstrapQuery) (*BootstrapResult, error) {
	if query.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id required")
	}

	branch, err := s.repo.FindBranch(ctx, query.BranchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "branch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
	}

	// GeneratedAt is captured before the reads so a write racing the pull
	// lands after the cursor and shows up in the next delta.
	generatedAt := time.Now().UTC()

	items, err := s.repo.ListMenuItems(ctx, query.BranchID, query.Since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}
	tables, err := s.repo.ListTables(ctx, query.BranchID, query.Since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tables")
	}
	customers, err := s.repo.ListCustomers(ctx, query.BranchID, query.Since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customers")
	}

	return &BootstrapResult{
		Branch: BranchSnapshot{
			ID:            branch.ID,
			Name:          branch.Name,
			TaxRate:       branch.TaxRate,
			FiscalEnabled: branch.FiscalEnabled,
		},
		MenuItems:   items,
		Tables:      tables,
		Customers:   customers,
		GeneratedAt: generatedAt,
	}, nil
}

func (s *service) RegisterCustomer(ctx context.Context, input RegisterCustomerInput) (*RegisterCustomerResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}

	existing, err := s.repo.FindCustomer(ctx, input.ID)
	if err == nil {
		return &RegisterCustomerResult{Customer: existing, Replayed: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}

	if _, err := s.repo.FindBranch(ctx, input.BranchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "branch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
	}

	customer := &models.Customer{
		ID:       input.ID,
		BranchID: input.BranchID,
		Name:     input.Name,
		Phone:    input.Phone,
		Email:    input.Email,
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		if dbpkg.IsUniqueViolation(err, "customers_pkey") {
			stored, findErr := s.repo.FindCustomer(ctx, input.ID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload customer")
			}
			return &RegisterCustomerResult{Customer: stored, Replayed: true}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	return &RegisterCustomerResult{Customer: customer, Replayed: false}, nil
}

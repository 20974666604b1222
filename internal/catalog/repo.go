package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/db/models"
)

// Repository reads the reference data terminals pull at bootstrap and
// accepts customer uploads.
type Repository interface {
	FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	ListMenuItems(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.MenuItem, error)
	ListTables(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.DiningTable, error)
	ListCustomers(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.Customer, error)
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *repository) ListMenuItems(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.MenuItem, error) {
	q := r.db.WithContext(ctx).
		Preload("Modifiers").
		Where("branch_id = ?", branchID).
		Order("category ASC, name ASC")
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	var rows []models.MenuItem
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListTables(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.DiningTable, error) {
	q := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("label ASC")
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	var rows []models.DiningTable
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListCustomers(ctx context.Context, branchID uuid.UUID, since *time.Time) ([]models.Customer, error) {
	q := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("created_at ASC")
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	var rows []models.Customer
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

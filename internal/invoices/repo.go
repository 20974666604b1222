package invoices

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
)

// Repository handles invoice and payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindLiveInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	NextInvoiceNumber(ctx context.Context, branchID uuid.UUID) (int64, error)
	UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]models.Invoice, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	SumPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoices repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Payments").
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindLiveInvoiceByOrder returns the order's non-void invoice if one exists.
func (r *repository) FindLiveInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.InvoiceStatusVoid).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) NextInvoiceNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("branch_id = ?", branchID).
		Select("COALESCE(MAX(invoice_number), 0) + 1").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

func (r *repository) UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]models.Invoice, error) {
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Preload("Payments").
		Where("branch_id = ?", query.BranchID).
		Order("created_at DESC").
		Limit(limit)
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.FiscalStatus != nil {
		q = q.Where("fiscal_status = ?", *query.FiscalStatus)
	}
	var rows []models.Invoice
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// SumPayments recomputes paid_amount from the payment rows, never by
// incrementing a cached value.
func (r *repository) SumPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var rows []models.Payment
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range rows {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

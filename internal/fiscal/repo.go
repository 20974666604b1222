package fiscal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
)

// Repository handles the fiscal submission state of invoices and the
// append-only submission audit log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	ListQueued(ctx context.Context, limit int) ([]models.Invoice, error)
	ListFailed(ctx context.Context, branchID uuid.UUID, limit int) ([]models.Invoice, error)
	ClaimForSubmission(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, fiscalNumber, qrCode string, submittedAt time.Time) error
	MarkFailure(ctx context.Context, id uuid.UUID) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
	AppendLog(ctx context.Context, entry *models.FiscalSubmissionLog) error
	CountByStatus(ctx context.Context) (map[enums.FiscalStatus]int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fiscal repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
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

func (r *repository) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *repository) ListQueued(ctx context.Context, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Invoice
	err := r.db.WithContext(ctx).
		Where("fiscal_status = ?", enums.FiscalStatusQueued).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListFailed(ctx context.Context, branchID uuid.UUID, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).
		Where("fiscal_status = ?", enums.FiscalStatusFailed).
		Order("updated_at ASC").
		Limit(limit)
	if branchID != uuid.Nil {
		q = q.Where("branch_id = ?", branchID)
	}
	var rows []models.Invoice
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimForSubmission flips the invoice to submitted so no other worker picks
// it up. The compare-and-set is committed before the external call is made.
func (r *repository) ClaimForSubmission(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND fiscal_status IN ?", id, []enums.FiscalStatus{
			enums.FiscalStatusQueued,
			enums.FiscalStatusFailed,
		}).
		Updates(map[string]any{"fiscal_status": enums.FiscalStatusSubmitted})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkSuccess(ctx context.Context, id uuid.UUID, fiscalNumber, qrCode string, submittedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"fiscal_status":   enums.FiscalStatusSuccess,
			"fiscal_number":   fiscalNumber,
			"fiscal_qr_code":  qrCode,
			"submitted_at":    submittedAt,
			"fiscal_attempts": gorm.Expr("fiscal_attempts + 1"),
		}).Error
}

func (r *repository) MarkFailure(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"fiscal_status":   enums.FiscalStatusFailed,
			"fiscal_attempts": gorm.Expr("fiscal_attempts + 1"),
		}).Error
}

// ResetForRetry requeues a failed invoice for another submission. The
// attempt counter is monotonic and carries across retries.
func (r *repository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND fiscal_status = ?", id, enums.FiscalStatusFailed).
		Update("fiscal_status", enums.FiscalStatusQueued).Error
}

// ExpireStaleClaims fails submitted invoices whose claim outlived the stale
// window, one audit row each. Covers workers that died between the claim and
// the outcome write; the outcome of the in-flight call is unknown, so the
// invoice needs an operator retry rather than an automatic resubmission.
func (r *repository) ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	var expired int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.Invoice
		err := tx.Select("id", "fiscal_attempts").
			Where("fiscal_status = ? AND updated_at < ?", enums.FiscalStatusSubmitted, olderThan).
			Find(&rows).Error
		if err != nil {
			return err
		}
		claimExpired := "submission claim expired"
		for _, invoice := range rows {
			err := tx.Model(&models.Invoice{}).
				Where("id = ?", invoice.ID).
				Updates(map[string]any{
					"fiscal_status":   enums.FiscalStatusFailed,
					"fiscal_attempts": gorm.Expr("fiscal_attempts + 1"),
				}).Error
			if err != nil {
				return err
			}
			entry := &models.FiscalSubmissionLog{
				ID:        uuid.New(),
				InvoiceID: invoice.ID,
				Attempt:   invoice.FiscalAttempts + 1,
				Outcome:   models.FiscalOutcomeFailed,
				Error:     &claimExpired,
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		expired = int64(len(rows))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (r *repository) AppendLog(ctx context.Context, entry *models.FiscalSubmissionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CountByStatus(ctx context.Context) (map[enums.FiscalStatus]int64, error) {
	type row struct {
		FiscalStatus enums.FiscalStatus
		Count        int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("fiscal_status, COUNT(*) AS count").
		Group("fiscal_status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.FiscalStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.FiscalStatus] = r.Count
	}
	return counts, nil
}

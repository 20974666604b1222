package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
)

// Repository handles order persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, extra map[string]any) error
	UpdateOrderTotals(ctx context.Context, order *models.Order) error
	ReplaceOrderItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]models.Order, error)
	FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	FindDiningTable(ctx context.Context, id uuid.UUID) (*models.DiningTable, error)
	UpdateTableStatus(ctx context.Context, id uuid.UUID, status enums.TableStatus) error
}

// ListOrdersQuery configures order list queries.
type ListOrdersQuery struct {
	BranchID uuid.UUID
	Status   *enums.OrderStatus
	Limit    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
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

// NextOrderNumber assigns branch-scoped sequential numbers inside the caller's
// transaction. The unique (branch_id, order_number) index catches races.
func (r *repository) NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("branch_id = ?", branchID).
		Select("COALESCE(MAX(order_number), 0) + 1").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, extra map[string]any) error {
	updates := map[string]any{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateOrderTotals(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"subtotal":        order.Subtotal,
			"tax_amount":      order.TaxAmount,
			"discount":        order.Discount,
			"discount_amount": order.DiscountAmount,
			"total":           order.Total,
		}).Error
}

func (r *repository) ReplaceOrderItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) ListOrders(ctx context.Context, query ListOrdersQuery) ([]models.Order, error) {
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Preload("Items").
		Where("branch_id = ?", query.BranchID).
		Order("placed_at DESC").
		Limit(limit)
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	var rows []models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *repository) FindDiningTable(ctx context.Context, id uuid.UUID) (*models.DiningTable, error) {
	var table models.DiningTable
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *repository) UpdateTableStatus(ctx context.Context, id uuid.UUID, status enums.TableStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.DiningTable{}).
		Where("id = ?", id).
		Update("status", status).Error
}

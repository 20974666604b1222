package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/internal/billing"
	dbpkg "github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/outbox"
	"github.com/tillworks/tillpoint/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order lifecycle operations.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	UpdateItems(ctx context.Context, input UpdateItemsInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Void(ctx context.Context, input VoidInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// OrderEvent is the payload emitted for order lifecycle changes.
type OrderEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber int64             `json:"order_number"`
	BranchID    uuid.UUID         `json:"branch_id"`
	DeviceID    string            `json:"device_id"`
	Status      enums.OrderStatus `json:"status"`
	Total       string            `json:"total"`
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

// CreateOrder reconciles a terminal upload. A second upload with the same
// client UUID returns the already-created row with its original order number
// and writes nothing.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id required")
	}
	if input.DeviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Discount != nil {
		if err := input.Discount.Validate(); err != nil {
			return nil, err
		}
	}
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item unit price cannot be negative")
		}
	}

	var result CreateOrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindOrder(ctx, input.ID)
		if err == nil {
			result.Order = existing
			result.Replayed = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
		}

		branch, err := repo.FindBranch(ctx, input.BranchID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "branch not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
		}

		items := buildItems(input.ID, input.Items)
		billing.ApplyLineAmounts(items, branch.TaxRate)
		totals, err := billing.Compute(items, branch.TaxRate, input.Discount)
		if err != nil {
			return err
		}

		number, err := repo.NextOrderNumber(ctx, input.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order number")
		}

		order := &models.Order{
			ID:             input.ID,
			OrderNumber:    number,
			BranchID:       input.BranchID,
			DeviceID:       input.DeviceID,
			Type:           input.Type,
			Status:         enums.OrderStatusOpen,
			TableID:        input.TableID,
			CustomerID:     input.CustomerID,
			Subtotal:       totals.Subtotal,
			TaxAmount:      totals.TaxAmount,
			Discount:       input.Discount,
			DiscountAmount: totals.DiscountAmount,
			Total:          totals.Total,
			CreatedOffline: input.CreatedOffline,
			Notes:          input.Notes,
			Items:          items,
			PlacedAt:       input.PlacedAt.UTC(),
		}

		if err := repo.CreateOrder(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "orders_pkey") {
				replayed, findErr := repo.FindOrder(ctx, input.ID)
				if findErr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload order")
				}
				result.Order = replayed
				result.Replayed = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if input.Type == enums.OrderTypeDineIn && input.TableID != nil {
			if err := s.occupyTable(ctx, repo, input.BranchID, *input.TableID); err != nil {
				return err
			}
		}

		result.Order = order
		return s.outbox.EmitIfNotExists(ctx, tx, s.orderEvent(enums.EventOrderCreated, order))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateItems replaces the item set of a still-editable order and recomputes
// its totals in the same transaction.
func (s *service) UpdateItems(ctx context.Context, input UpdateItemsInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Discount != nil {
		if err := input.Discount.Validate(); err != nil {
			return nil, err
		}
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !ItemsEditable(order.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order items can no longer be modified")
		}

		branch, err := repo.FindBranch(ctx, order.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
		}

		items := buildItems(order.ID, input.Items)
		billing.ApplyLineAmounts(items, branch.TaxRate)

		discount := input.Discount
		if discount == nil {
			discount = order.Discount
		}
		totals, err := billing.Compute(items, branch.TaxRate, discount)
		if err != nil {
			return err
		}

		if err := repo.ReplaceOrderItems(ctx, order.ID, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace items")
		}

		order.Items = items
		order.Discount = discount
		order.Subtotal = totals.Subtotal
		order.TaxAmount = totals.TaxAmount
		order.DiscountAmount = totals.DiscountAmount
		order.Total = totals.Total
		if err := repo.UpdateOrderTotals(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update totals")
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition moves an order along the lifecycle. Cancel and Void have their
// own operations because they carry extra requirements.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.Target == enums.OrderStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation, a reason is required")
	}
	if input.Target == enums.OrderStatusVoided {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the void operation, manager authorization is required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == input.Target {
			updated = order
			return nil
		}
		if !CanTransition(order.Status, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot transition order from %s to %s", order.Status, input.Target))
		}

		if err := repo.UpdateOrderStatus(ctx, order.ID, input.Target, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = input.Target

		if input.Target == enums.OrderStatusCompleted {
			if err := s.releaseTable(ctx, repo, order); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, s.orderEvent(enums.EventOrderCompleted, order)); err != nil {
				return err
			}
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel aborts an order before completion. The reason is mandatory and the
// table, if any, goes back to available.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCanceled {
			updated = order
			return nil
		}
		if !CanTransition(order.Status, enums.OrderStatusCanceled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot cancel order in status %s", order.Status))
		}

		extra := map[string]any{"cancel_reason": input.Reason}
		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCanceled, extra); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		order.Status = enums.OrderStatusCanceled
		order.CancelReason = &input.Reason

		if err := s.releaseTable(ctx, repo, order); err != nil {
			return err
		}

		updated = order
		return s.outbox.Emit(ctx, tx, s.orderEvent(enums.EventOrderCanceled, order))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Void cancels an order with manager authority, reachable from any
// pre-payment state and from completed. The table, if any, goes back to
// available.
func (s *service) Void(ctx context.Context, input VoidInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ManagerPIN == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "manager pin required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusVoided {
			updated = order
			return nil
		}
		if !CanTransition(order.Status, enums.OrderStatusVoided) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot void order in status %s", order.Status))
		}

		branch, err := repo.FindBranch(ctx, order.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
		}
		if branch.ManagerPINHash == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "branch has no manager pin configured")
		}
		ok, err := security.VerifyPin(input.ManagerPIN, *branch.ManagerPINHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify manager pin")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "manager pin rejected")
		}

		extra := map[string]any{"voided_by": input.VoidedBy}
		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusVoided, extra); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void order")
		}
		order.Status = enums.OrderStatusVoided
		order.VoidedBy = input.VoidedBy

		if err := s.releaseTable(ctx, repo, order); err != nil {
			return err
		}

		updated = order
		return s.outbox.Emit(ctx, tx, s.orderEvent(enums.EventOrderVoided, order))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, query ListOrdersQuery) ([]models.Order, error) {
	if query.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id required")
	}
	rows, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) occupyTable(ctx context.Context, repo Repository, branchID, tableID uuid.UUID) error {
	table, err := repo.FindDiningTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load table")
	}
	if table.BranchID != branchID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "table does not belong to branch")
	}
	if err := repo.UpdateTableStatus(ctx, tableID, enums.TableStatusOccupied); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "occupy table")
	}
	return nil
}

func (s *service) releaseTable(ctx context.Context, repo Repository, order *models.Order) error {
	if order.Type != enums.OrderTypeDineIn || order.TableID == nil {
		return nil
	}
	if err := repo.UpdateTableStatus(ctx, *order.TableID, enums.TableStatusAvailable); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release table")
	}
	return nil
}

func (s *service) orderEvent(eventType enums.OutboxEventType, order *models.Order) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Device:        &outbox.DeviceRef{DeviceID: order.DeviceID, BranchID: &order.BranchID},
		Data: OrderEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BranchID:    order.BranchID,
			DeviceID:    order.DeviceID,
			Status:      order.Status,
			Total:       order.Total.String(),
		},
	}
}

func buildItems(orderID uuid.UUID, inputs []ItemInput) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		id := in.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		items = append(items, models.OrderItem{
			ID:         id,
			OrderID:    orderID,
			MenuItemID: in.MenuItemID,
			Name:       in.Name,
			Qty:        in.Qty,
			UnitPrice:  in.UnitPrice,
			Modifiers:  in.Modifiers,
			Notes:      in.Notes,
		})
	}
	return items
}

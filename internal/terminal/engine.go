package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

const (
	defaultSyncInterval = 30 * time.Second
	defaultMaxRetries   = 3
)

type uploader interface {
	CreateOrder(ctx context.Context, payload json.RawMessage) (*UploadResult, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, payload json.RawMessage) (*UploadResult, error)
	CreateInvoice(ctx context.Context, payload json.RawMessage) (*UploadResult, error)
	CreatePayment(ctx context.Context, payload json.RawMessage) (*UploadResult, error)
	CreateCustomer(ctx context.Context, payload json.RawMessage) (*UploadResult, error)
}

// Status is the engine's view for the terminal UI.
type Status struct {
	Pending    int64
	Failed     int64
	Draining   bool
	LastSyncAt *time.Time
}

// EngineParams configure the sync engine.
type EngineParams struct {
	Queue      *Queue
	Store      *Store
	Client     uploader
	Logger     *logger.Logger
	Interval   time.Duration
	MaxRetries int
	// OnItemFailed fires when an item moves to the failed store, so the UI
	// can alert the operator.
	OnItemFailed func(FailedSyncItem)
}

// Engine drains the sync queue. Every trigger — the timer, a reconnect, a
// post-enqueue nudge, a manual sync — collapses into one message on a
// buffered channel consumed by a single goroutine, so two drains can never
// overlap and a trigger during a drain just schedules the next one.
type Engine struct {
	queue      *Queue
	store      *Store
	client     uploader
	logg       *logger.Logger
	interval   time.Duration
	maxRetries int
	onFailed   func(FailedSyncItem)

	drainCh chan struct{}

	mu       sync.Mutex
	draining bool
	lastSync *time.Time
}

// NewEngine builds a sync engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("entity store required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("upload client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Engine{
		queue:      params.Queue,
		store:      params.Store,
		client:     params.Client,
		logg:       params.Logger,
		interval:   interval,
		maxRetries: maxRetries,
		onFailed:   params.OnItemFailed,
		drainCh:    make(chan struct{}, 1),
	}, nil
}

// Run consumes drain triggers until the context is canceled. Call it in its
// own goroutine; it performs one recovery scan and drain at startup.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.nudge()
	for {
		select {
		case <-ctx.Done():
			e.logg.Info(ctx, "sync engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.nudge()
		case <-e.drainCh:
			e.drain(ctx)
		}
	}
}

// SyncNow requests an immediate drain.
func (e *Engine) SyncNow() { e.nudge() }

// NotifyEnqueued nudges the engine after a local change was queued.
func (e *Engine) NotifyEnqueued() { e.nudge() }

// OnReconnect nudges the engine when connectivity returns.
func (e *Engine) OnReconnect() { e.nudge() }

// Status reports queue depth and drain state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, failed, err := e.queue.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Pending:    pending,
		Failed:     failed,
		Draining:   e.draining,
		LastSyncAt: e.lastSync,
	}, nil
}

// FailedItems lists parked items awaiting an operator decision.
func (e *Engine) FailedItems(ctx context.Context) ([]FailedSyncItem, error) {
	return e.queue.ListFailed(ctx)
}

// RetryFailed moves one parked item back onto the queue with a fresh retry
// budget and schedules a drain.
func (e *Engine) RetryFailed(ctx context.Context, failedID int64) error {
	if err := e.queue.RetryFailed(ctx, failedID); err != nil {
		return err
	}
	e.nudge()
	return nil
}

// RetryAllFailed re-enqueues every parked item and schedules a drain.
func (e *Engine) RetryAllFailed(ctx context.Context) (int, error) {
	n, err := e.queue.RetryAllFailed(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		e.nudge()
	}
	return n, nil
}

// nudge coalesces into the buffered channel: if a drain is already
// scheduled the trigger is a no-op.
func (e *Engine) nudge() {
	select {
	case e.drainCh <- struct{}{}:
	default:
	}
}

// drain uploads pending items oldest-first. A retryable failure stops the
// pass — later items must not jump ahead of an earlier create — while a
// fatal item moves to the failed store and the pass continues.
func (e *Engine) drain(ctx context.Context) {
	e.setDraining(true)
	defer e.setDraining(false)

	if err := e.recoveryScan(ctx); err != nil {
		e.logg.Error(ctx, "recovery scan failed", err)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		items, err := e.queue.DequeueInOrder(ctx, 1)
		if err != nil {
			e.logg.Error(ctx, "dequeue failed", err)
			return
		}
		if len(items) == 0 {
			return
		}
		if cont := e.processItem(ctx, items[0]); !cont {
			return
		}
	}
}

func (e *Engine) processItem(ctx context.Context, item SyncQueueItem) bool {
	itemCtx := e.logg.WithFields(ctx, map[string]any{
		"seq":         item.Seq,
		"entity_type": string(item.EntityType),
		"entity_uuid": item.EntityUUID.String(),
		"action":      string(item.Action),
	})

	result, err := e.dispatch(ctx, item)
	if err == nil {
		if err := e.queue.Remove(ctx, item.Seq); err != nil {
			e.logg.Error(itemCtx, "remove synced item failed", err)
			return false
		}
		if err := e.store.MarkSynced(ctx, item.EntityUUID, result.ServerNumber); err != nil {
			e.logg.Error(itemCtx, "mark synced failed", err)
		}
		e.recordSync()
		e.logg.Info(itemCtx, "item synced")
		return true
	}

	if pkgerrors.Retryable(err) {
		if recErr := e.queue.RecordFailure(ctx, item.Seq, err.Error()); recErr != nil {
			e.logg.Error(itemCtx, "record failure failed", recErr)
			return false
		}
		if item.RetryCount+1 >= e.maxRetries {
			e.parkItem(itemCtx, item.Seq)
			return true
		}
		e.logg.Warn(e.logg.WithField(itemCtx, "retry_count", item.RetryCount+1), "upload failed, will retry")
		return false
	}

	// Fatal rejection. Retrying the same payload cannot succeed.
	if recErr := e.queue.RecordFailure(ctx, item.Seq, err.Error()); recErr != nil {
		e.logg.Error(itemCtx, "record failure failed", recErr)
		return false
	}
	e.parkItem(itemCtx, item.Seq)
	return true
}

func (e *Engine) parkItem(ctx context.Context, seq int64) {
	failed, err := e.queue.MoveToFailed(ctx, seq)
	if err != nil {
		e.logg.Error(ctx, "move to failed store failed", err)
		return
	}
	e.logg.Warn(ctx, "item moved to failed store")
	if e.onFailed != nil {
		e.onFailed(*failed)
	}
}

func (e *Engine) dispatch(ctx context.Context, item SyncQueueItem) (*UploadResult, error) {
	switch {
	case item.EntityType == EntityOrder && item.Action == ActionCreate:
		return e.client.CreateOrder(ctx, item.Payload)
	case item.EntityType == EntityOrder && item.Action == ActionUpdate:
		return e.client.UpdateOrder(ctx, item.EntityUUID, item.Payload)
	case item.EntityType == EntityInvoice && item.Action == ActionCreate:
		return e.client.CreateInvoice(ctx, item.Payload)
	case item.EntityType == EntityPayment && item.Action == ActionCreate:
		return e.client.CreatePayment(ctx, item.Payload)
	case item.EntityType == EntityCustomer && item.Action == ActionCreate:
		return e.client.CreateCustomer(ctx, item.Payload)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("no upload route for %s %s", item.Action, item.EntityType))
	}
}

// recoveryScan re-enqueues offline-created entities that are unsynced but
// missing from the queue, e.g. after a crash between the entity write and
// the enqueue.
func (e *Engine) recoveryScan(ctx context.Context) error {
	records, err := e.store.UnsyncedOfflineEntities(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		queued, err := e.queue.Contains(ctx, record.UUID)
		if err != nil {
			return err
		}
		if queued {
			continue
		}
		item := &SyncQueueItem{
			EntityType: record.EntityType,
			EntityUUID: record.UUID,
			Action:     ActionCreate,
			Payload:    record.Payload,
		}
		if err := e.queue.Enqueue(ctx, item); err != nil {
			return err
		}
		e.logg.Info(e.logg.WithField(ctx, "entity_uuid", record.UUID.String()), "recovered unsynced entity")
	}
	return nil
}

func (e *Engine) setDraining(v bool) {
	e.mu.Lock()
	e.draining = v
	e.mu.Unlock()
}

func (e *Engine) recordSync() {
	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSync = &now
	e.mu.Unlock()
}

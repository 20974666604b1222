package terminal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

type bootstrapPuller interface {
	Bootstrap(ctx context.Context, since time.Time) (json.RawMessage, error)
}

// RefreshReference pulls the reference delta since the last checkpoint and
// caches it in the local store. Returns the number of records cached. A
// failed pull leaves the previous cache and checkpoint intact, so the
// terminal keeps working from stale data.
func RefreshReference(ctx context.Context, client bootstrapPuller, store *Store, logg *logger.Logger) (int, error) {
	since := time.Time{}
	if cursor, err := store.Checkpoint(ctx); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load bootstrap checkpoint")
	} else if cursor != nil {
		since = *cursor
	}

	raw, err := client.Bootstrap(ctx, since)
	if err != nil {
		return 0, err
	}

	var snapshot struct {
		Branch      json.RawMessage   `json:"branch"`
		MenuItems   []json.RawMessage `json:"menu_items"`
		Tables      []json.RawMessage `json:"tables"`
		Customers   []json.RawMessage `json:"customers"`
		GeneratedAt time.Time         `json:"generated_at"`
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode reference snapshot")
	}

	cached := 0
	if len(snapshot.Branch) > 0 {
		if err := cacheOne(ctx, store, EntityBranch, snapshot.Branch); err != nil {
			return cached, err
		}
		cached++
	}
	for entityType, items := range map[EntityType][]json.RawMessage{
		EntityMenuItem: snapshot.MenuItems,
		EntityTable:    snapshot.Tables,
		EntityCustomer: snapshot.Customers,
	} {
		for _, item := range items {
			if err := cacheOne(ctx, store, entityType, item); err != nil {
				return cached, err
			}
			cached++
		}
	}

	if !snapshot.GeneratedAt.IsZero() {
		if err := store.SaveCheckpoint(ctx, snapshot.GeneratedAt); err != nil {
			return cached, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save bootstrap checkpoint")
		}
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"cached": cached,
		"since":  since,
	}), "reference data refreshed")
	return cached, nil
}

func cacheOne(ctx context.Context, store *Store, entityType EntityType, payload json.RawMessage) error {
	var ident struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(payload, &ident); err != nil || ident.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "reference record missing id")
	}
	return store.SaveReference(ctx, entityType, ident.ID, payload)
}

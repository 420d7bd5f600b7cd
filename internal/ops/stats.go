package ops

import (
	"context"

	"github.com/hpungsan/flightrecorder/internal/db"
)

// Stats reports the store's size, time range, and per-type and per-app counts.
func Stats(ctx context.Context, store *db.Store) (*db.Stats, error) {
	return store.Stats(ctx)
}

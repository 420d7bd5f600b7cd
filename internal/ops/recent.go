package ops

import (
	"context"
	"time"

	"github.com/hpungsan/flightrecorder/internal/db"
)

// RecentInput contains parameters for the Recent operation.
type RecentInput struct {
	App            string        // optional, exact source app
	Type           string        // optional capture type
	Within         time.Duration // optional, only captures newer than now-Within
	Limit          int           // default: 20, max: 100
	Offset         int           // default: 0
	IncludeContent bool
}

// ListOutput contains the result of a list operation.
type ListOutput struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// Recent lists the newest captures with pagination.
func Recent(ctx context.Context, store *db.Store, input RecentInput) (*ListOutput, error) {
	typ, err := parseTypeFilter(input.Type)
	if err != nil {
		return nil, err
	}

	filter := db.QueryFilter{App: input.App, Type: typ}
	if input.Within > 0 {
		filter.Since = time.Now().UTC().Add(-input.Within)
	}
	return list(ctx, store, filter, input.Limit, input.Offset, input.IncludeContent)
}

// list runs a filtered, paginated query newest first.
func list(ctx context.Context, store *db.Store, filter db.QueryFilter, limit, offset int, includeContent bool) (*ListOutput, error) {
	// Apply limit defaults and bounds
	filter.Limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	// Ensure offset is non-negative
	filter.Offset = max(offset, 0)

	captures, err := store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := store.CountMatching(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := toItems(captures, includeContent)
	hasMore := filter.Offset+len(items) < total

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: hasMore,
			Total:   total,
		},
		Sort: "timestamp_desc",
	}, nil
}

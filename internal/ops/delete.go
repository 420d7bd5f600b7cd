package ops

import (
	"context"
	"strconv"

	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID int64
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// Delete permanently removes a capture. A missing ID is NOT_FOUND.
func Delete(ctx context.Context, store *db.Store, input DeleteInput) (*DeleteOutput, error) {
	if err := validateID(input.ID); err != nil {
		return nil, err
	}

	deleted, err := store.Delete(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, errors.NewNotFound(strconv.FormatInt(input.ID, 10))
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      input.ID,
	}, nil
}

package ops

import (
	"context"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/db"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID          int64
	IncludeText *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	capture.ExportRecord
	Chars int `json:"chars"`
}

// Fetch retrieves a capture by ID.
func Fetch(ctx context.Context, store *db.Store, input FetchInput) (*FetchOutput, error) {
	if err := validateID(input.ID); err != nil {
		return nil, err
	}

	c, err := store.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	output := &FetchOutput{
		ExportRecord: c.ToExportRecord(),
		Chars:        capture.CountChars(c.Content),
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if !includeText {
		output.Content = ""
	}
	return output, nil
}

package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/retention"
)

// PruneInput contains parameters for the Prune operation.
// Nil fields fall back to the configured retention policy.
type PruneInput struct {
	OlderThan *time.Duration // delete captures older than this
	Keep      *int           // keep only this many newest captures
}

// PruneOutput contains the result of the Prune operation.
type PruneOutput struct {
	Pruned  int64  `json:"pruned"`
	ByAge   int64  `json:"by_age"`
	ByCount int64  `json:"by_count"`
	Message string `json:"message"`
}

// Prune applies the retention policy once, with optional overrides.
func Prune(ctx context.Context, store *db.Store, policy retention.Policy, input PruneInput) (*PruneOutput, error) {
	if input.OlderThan != nil {
		if *input.OlderThan < 0 {
			return nil, errors.NewInvalidRequest("older_than must not be negative")
		}
		policy.MaxAge = *input.OlderThan
	}
	if input.Keep != nil {
		if *input.Keep < 0 {
			return nil, errors.NewInvalidRequest("keep must not be negative")
		}
		policy.MaxCaptures = *input.Keep
	}

	res, err := retention.New(store, policy, nil).RunOnce(ctx)
	if err != nil {
		return nil, err
	}

	return &PruneOutput{
		Pruned:  res.Total(),
		ByAge:   res.ByAge,
		ByCount: res.ByCount,
		Message: formatPruneMessage(res, policy),
	}, nil
}

// formatPruneMessage creates a human-readable message for the prune result.
func formatPruneMessage(res retention.Result, policy retention.Policy) string {
	if !policy.Enabled() {
		return "No retention limits configured"
	}
	if res.Total() == 0 {
		return "No captures to prune"
	}

	word := "capture"
	if res.Total() > 1 {
		word = "captures"
	}
	msg := fmt.Sprintf("Deleted %d %s", res.Total(), word)

	if res.ByAge > 0 {
		msg += fmt.Sprintf(" (%d older than %s", res.ByAge, formatAge(policy.MaxAge))
		if res.ByCount > 0 {
			msg += fmt.Sprintf(", %d over the %d-capture limit", res.ByCount, policy.MaxCaptures)
		}
		msg += ")"
	} else if res.ByCount > 0 {
		msg += fmt.Sprintf(" (over the %d-capture limit)", policy.MaxCaptures)
	}
	return msg
}

// formatAge renders whole days as "Nd" and anything else as a Go duration.
func formatAge(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}
	return d.String()
}

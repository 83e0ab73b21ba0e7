package reconcile

import (
	"fmt"
	"time"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// DefaultStaleAfter is how long a non-terminal job may go without updating
// its status record before it is treated as failed.
const DefaultStaleAfter = 10 * time.Minute

// IsStale reports whether rec has gone quiet for longer than after. Missing
// records and terminal statuses are never stale.
func IsStale(t *phase.Table, rec *model.StatusRecord, now time.Time, after time.Duration) bool {
	if rec == nil || rec.UpdatedAt.IsZero() {
		return false
	}
	if after <= 0 {
		after = DefaultStaleAfter
	}
	if t.IsTerminal(rec.Status) {
		return false
	}
	return now.Sub(rec.UpdatedAt) > after
}

// TimeoutError is the synthetic error attached to a stale track. It is worded
// differently from a declared failure because the real cause is unknown.
func TimeoutError(after time.Duration) *model.TrackError {
	if after <= 0 {
		after = DefaultStaleAfter
	}
	return &model.TrackError{
		Kind:    model.ErrorTimeout,
		Message: fmt.Sprintf("Timed out: no progress reported for over %s. The job may have failed; retry to restart it.", humanDuration(after)),
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

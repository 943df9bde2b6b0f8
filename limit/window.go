package limit

import (
	"time"

	"github.com/xraph/remit/types"
)

// Window is the length of the trailing spending window.
const Window = 24 * time.Hour

// WindowStart returns the exclusive lower bound of the window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.Add(-Window)
}

// InWindow reports whether ts lies in (now - Window, now].
func InWindow(ts, now time.Time) bool {
	return ts.After(WindowStart(now)) && !ts.After(now)
}

// Volume sums the amounts of the records inside the window ending at now.
// Records outside the window are ignored.
func Volume(records []*TransferRecord, now time.Time) (types.Amount, error) {
	total := types.Zero()
	for _, r := range records {
		if !InWindow(r.Timestamp, now) {
			continue
		}
		var err error
		if total, err = total.CheckedAdd(r.Amount); err != nil {
			return types.Amount{}, err
		}
	}
	return total, nil
}

// Allows reports whether moving amount on top of used stays within the cap.
// Reaching the cap exactly is allowed.
func (l *DailyLimit) Allows(used, amount types.Amount) (bool, error) {
	next, err := used.CheckedAdd(amount)
	if err != nil {
		return false, err
	}
	return !next.GreaterThan(l.Limit), nil
}

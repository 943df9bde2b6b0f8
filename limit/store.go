package limit

import (
	"context"
	"time"
)

type Store interface {
	GetDailyLimit(ctx context.Context, key Key) (*DailyLimit, error)
	ListDailyLimits(ctx context.Context) ([]*DailyLimit, error)
	// ListTransferRecords returns the records of key with a timestamp strictly
	// after since, oldest first.
	ListTransferRecords(ctx context.Context, key HistoryKey, since time.Time) ([]*TransferRecord, error)
	PruneTransferRecords(ctx context.Context, before time.Time) (int64, error)
}

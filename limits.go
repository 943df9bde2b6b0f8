package remit

import (
	"context"

	"github.com/xraph/remit/event"
	"github.com/xraph/remit/id"
	"github.com/xraph/remit/limit"
	"github.com/xraph/remit/types"
)

// SetDailyLimit caps the rolling 24-hour volume each sender may move
// through the corridor (currency, country). It replaces any existing cap.
func (e *Engine) SetDailyLimit(ctx context.Context, currency, country string, capAmount types.Amount) error {
	return e.invoke(ctx, "set_daily_limit", func(inv *invocation) error {
		st, err := inv.requireAdmin()
		if err != nil {
			return err
		}
		if capAmount.IsNegative() {
			return ErrInvalidAmount
		}

		key := limit.NewKey(currency, country)
		l, err := inv.dailyLimit(key)
		if err != nil {
			return err
		}
		if l == nil {
			l = &limit.DailyLimit{Entity: types.NewEntity(inv.now), Key: key}
		} else {
			c := *l
			l = &c
			l.Touch(inv.now)
		}
		l.Limit = capAmount
		inv.putLimit(l)

		inv.emit(event.DailyLimitSet{
			Admin:    st.Admin,
			Currency: key.Currency,
			Country:  key.Country,
			Limit:    capAmount,
		})
		return nil
	})
}

// GetDailyLimit returns the corridor cap, or ErrDailyLimitNotFound when
// the corridor is uncapped.
func (e *Engine) GetDailyLimit(ctx context.Context, currency, country string) (*limit.DailyLimit, error) {
	return e.store.GetDailyLimit(ctx, limit.NewKey(currency, country))
}

// ListDailyLimits returns every configured corridor cap.
func (e *Engine) ListDailyLimits(ctx context.Context) ([]*limit.DailyLimit, error) {
	return e.store.ListDailyLimits(ctx)
}

// RollingVolume returns what sender has moved through the corridor within
// the window ending now.
func (e *Engine) RollingVolume(ctx context.Context, sender types.Address, currency, country string) (types.Amount, error) {
	now := e.clock().UTC()
	records, err := e.store.ListTransferRecords(ctx, limit.NewHistoryKey(sender, currency, country), limit.WindowStart(now))
	if err != nil {
		return types.Amount{}, err
	}
	used, err := limit.Volume(records, now)
	return used, mapArith(err)
}

// PruneTransferHistory deletes transfer records that can no longer count
// against any window and returns how many were removed.
func (e *Engine) PruneTransferHistory(ctx context.Context) (int64, error) {
	var n int64
	err := e.invoke(ctx, "prune_transfer_history", func(inv *invocation) error {
		var err error
		n, err = e.store.PruneTransferRecords(ctx, limit.WindowStart(inv.now))
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("remit pruned transfer history", "records", n)
	}
	return n, nil
}

// checkAndRecord fails with ErrDailyLimitExceeded when amount would push
// the sender past the corridor cap; otherwise it stages a transfer record.
func (inv *invocation) checkAndRecord(key limit.HistoryKey, amount types.Amount) error {
	l, err := inv.dailyLimit(key.Key)
	if err != nil {
		return err
	}
	if l != nil {
		used, err := inv.volume(key)
		if err != nil {
			return err
		}
		ok, err := l.Allows(used, amount)
		if err != nil {
			return mapArith(err)
		}
		if !ok {
			return ErrDailyLimitExceeded
		}
	}

	inv.recordTransfer(&limit.TransferRecord{
		ID:        id.NewTransferID(),
		Sender:    key.Sender,
		Currency:  key.Currency,
		Country:   key.Country,
		Amount:    amount,
		Timestamp: inv.now,
	})
	return nil
}

// Package limit implements the rolling 24-hour spending cap applied per
// sender, currency and destination country.
package limit

import (
	"strings"
	"time"

	"github.com/xraph/remit/id"
	"github.com/xraph/remit/types"
)

// Key addresses a daily limit: one corridor (currency, country).
type Key struct {
	Currency string `json:"currency"`
	Country  string `json:"country"`
}

// NewKey normalizes currency and country codes to upper case.
func NewKey(currency, country string) Key {
	return Key{
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
		Country:  strings.ToUpper(strings.TrimSpace(country)),
	}
}

func (k Key) String() string { return k.Currency + ":" + k.Country }

// HistoryKey addresses one sender's transfer history in a corridor.
type HistoryKey struct {
	Sender types.Address `json:"sender"`
	Key
}

// NewHistoryKey builds a normalized HistoryKey.
func NewHistoryKey(sender types.Address, currency, country string) HistoryKey {
	return HistoryKey{Sender: sender, Key: NewKey(currency, country)}
}

func (k HistoryKey) String() string { return string(k.Sender) + ":" + k.Key.String() }

// DailyLimit caps the total a sender may move through a corridor within
// any trailing Window. A corridor without a DailyLimit is uncapped.
type DailyLimit struct {
	types.Entity
	Key
	Limit types.Amount `json:"limit"`
}

// TransferRecord is one executed transfer counted against a sender's
// rolling window.
type TransferRecord struct {
	ID        id.TransferID `json:"id"`
	Sender    types.Address `json:"sender"`
	Currency  string        `json:"currency"`
	Country   string        `json:"country"`
	Amount    types.Amount  `json:"amount"`
	Timestamp time.Time     `json:"timestamp"`
}

// HistoryKey returns the history the record belongs to.
func (r *TransferRecord) HistoryKey() HistoryKey {
	return NewHistoryKey(r.Sender, r.Currency, r.Country)
}

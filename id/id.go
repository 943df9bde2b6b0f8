// Package id provides the TypeID identifiers remit stamps on events, batch
// runs, limit tracker records and custody moves.
//
// Remittances are not in this package: they are numbered by the ledger's
// monotonic counter. Everything else gets a K-sortable "prefix_suffix" id
// whose prefix names the record kind, so an id pasted into a log line or a
// support ticket says what it points at.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the record kind encoded in an ID.
type Prefix string

const (
	PrefixEvent    Prefix = "evt"
	PrefixBatch    Prefix = "batch"
	PrefixTransfer Prefix = "xfer"
	PrefixMove     Prefix = "mv"
)

// New generates an ID of kind p. It panics on a prefix TypeID rejects,
// which only happens for a constant mistyped in this package.
func (p Prefix) New() ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

// Parse decodes s and rejects ids of any other kind.
func (p Prefix) Parse(s string) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return ID{}, err
	}
	if got := v.Prefix(); got != p {
		return ID{}, fmt.Errorf("id: %q is a %s id, want %s", s, got, p)
	}
	return v, nil
}

// ID is a prefix-qualified TypeID. The zero value is the nil id and
// renders as the empty string.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Record-kind aliases, for signatures that want to say which kind they hold.
type (
	EventID    = ID
	BatchID    = ID
	TransferID = ID
	MoveID     = ID
)

func NewEventID() ID    { return PrefixEvent.New() }
func NewBatchID() ID    { return PrefixBatch.New() }
func NewTransferID() ID { return PrefixTransfer.New() }
func NewMoveID() ID     { return PrefixMove.New() }

func ParseEventID(s string) (ID, error)    { return PrefixEvent.Parse(s) }
func ParseBatchID(s string) (ID, error)    { return PrefixBatch.Parse(s) }
func ParseTransferID(s string) (ID, error) { return PrefixTransfer.Parse(s) }
func ParseMoveID(s string) (ID, error)     { return PrefixMove.Parse(s) }

// Parse decodes an id of any kind.
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithPrefix is Parse restricted to kind p.
func ParseWithPrefix(s string, p Prefix) (ID, error) { return p.Parse(s) }

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record kind, or "" for the nil id.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

// MarshalText encodes the nil id as the empty string so optional ids
// survive a JSON round trip.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = ID{}
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

package remit

import "github.com/xraph/remit/id"

// ID is the TypeID identifier type used for events, batches, transfer
// records and custody moves. Remittances use sequential integer ids.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

package settlement

import "context"

type Store interface {
	HasSettlementMark(ctx context.Context, remittanceID uint64) (bool, error)
	GetSettlementMark(ctx context.Context, remittanceID uint64) (*Mark, error)
}

package admin

import (
	"context"

	"github.com/xraph/remit/types"
)

type Store interface {
	GetState(ctx context.Context) (*State, error)
	IsAgentRegistered(ctx context.Context, agent types.Address) (bool, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
}

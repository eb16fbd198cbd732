package storage

import (
	"context"
	"math/big"

	"github.com/rpch-net/discovery-platform/internal/domain/client"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/domain/quota"
)

// RegistryStore persists registered nodes and their funding requests.
// Implementations surface core.ErrNotFound when zero rows match a key and
// core.ErrConflict on duplicate inserts.
type RegistryStore interface {
	CreateNode(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error)
	UpdateNode(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error)
	GetNode(ctx context.Context, id string) (node.RegisteredNode, error)
	ListNodes(ctx context.Context, filter node.Filter) ([]node.RegisteredNode, error)
	DeleteNode(ctx context.Context, id string) error

	CreateFundingRequest(ctx context.Context, req node.FundingRequest) (node.FundingRequest, error)
	ListFundingRequests(ctx context.Context, nodeID string) ([]node.FundingRequest, error)
}

// ClientStore persists quota-consuming accounts.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id string) (client.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// LedgerStore persists the append-only quota ledger.
type LedgerStore interface {
	CreateQuota(ctx context.Context, e quota.Entry) (quota.Entry, error)
	GetQuota(ctx context.Context, id int64) (quota.Entry, error)
	DeleteQuota(ctx context.Context, id int64) error

	// SumQuotasPaidBy returns the exact integer sum of Quota over all entries
	// with PaidBy equal to accountID. Zero matching entries sum to zero.
	SumQuotasPaidBy(ctx context.Context, accountID string) (*big.Int, error)
}

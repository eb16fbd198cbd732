package storage

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/internal/domain/client"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/domain/quota"
)

// Memory is a thread-safe in-memory persistence layer implementing the
// storage interfaces defined in this package. It is intended for tests and
// prototyping and deliberately keeps the implementation simple.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	nodes    map[string]node.RegisteredNode
	clients  map[string]client.Client
	quotas   map[int64]quota.Entry
	fundings []node.FundingRequest
}

var _ RegistryStore = (*Memory)(nil)
var _ ClientStore = (*Memory)(nil)
var _ LedgerStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:  1,
		nodes:   make(map[string]node.RegisteredNode),
		clients: make(map[string]client.Client),
		quotas:  make(map[int64]quota.Entry),
	}
}

func (m *Memory) nextIDLocked() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// RegistryStore implementation -----------------------------------------------

func (m *Memory) CreateNode(_ context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[n.ID]; exists {
		return node.RegisteredNode{}, core.NewConflictError("registered node", n.ID)
	}

	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.TotalAmountFunded = cloneInt(n.TotalAmountFunded)
	if n.TotalAmountFunded == nil {
		n.TotalAmountFunded = big.NewInt(0)
	}

	m.nodes[n.ID] = n
	return cloneNode(n), nil
}

func (m *Memory) UpdateNode(_ context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.nodes[n.ID]
	if !ok {
		return node.RegisteredNode{}, core.NewNotFoundError("registered node", n.ID)
	}

	n.CreatedAt = original.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	n.TotalAmountFunded = cloneInt(n.TotalAmountFunded)
	if n.TotalAmountFunded == nil {
		n.TotalAmountFunded = cloneInt(original.TotalAmountFunded)
	}

	m.nodes[n.ID] = n
	return cloneNode(n), nil
}

func (m *Memory) GetNode(_ context.Context, id string) (node.RegisteredNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return node.RegisteredNode{}, core.NewNotFoundError("registered node", id)
	}
	return cloneNode(n), nil
}

func (m *Memory) ListNodes(_ context.Context, filter node.Filter) ([]node.RegisteredNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]node.RegisteredNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		if filter.Matches(n) {
			result = append(result, cloneNode(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeleteNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return core.NewNotFoundError("registered node", id)
	}
	delete(m.nodes, id)
	return nil
}

func (m *Memory) CreateFundingRequest(_ context.Context, req node.FundingRequest) (node.FundingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[req.RegisteredNodeID]; !ok {
		return node.FundingRequest{}, core.NewNotFoundError("registered node", req.RegisteredNodeID)
	}

	req.ID = m.nextIDLocked()
	req.CreatedAt = time.Now().UTC()
	req.Amount = cloneInt(req.Amount)

	m.fundings = append(m.fundings, req)
	return cloneFunding(req), nil
}

func (m *Memory) ListFundingRequests(_ context.Context, nodeID string) ([]node.FundingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []node.FundingRequest
	for _, req := range m.fundings {
		if nodeID == "" || req.RegisteredNodeID == nodeID {
			result = append(result, cloneFunding(req))
		}
	}
	return result, nil
}

// ClientStore implementation --------------------------------------------------

func (m *Memory) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.ID]; exists {
		return client.Client{}, core.NewConflictError("client", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Labels = append([]string(nil), c.Labels...)

	m.clients[c.ID] = c
	return cloneClient(c), nil
}

func (m *Memory) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.clients[c.ID]
	if !ok {
		return client.Client{}, core.NewNotFoundError("client", c.ID)
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.Labels = append([]string(nil), c.Labels...)

	m.clients[c.ID] = c
	return cloneClient(c), nil
}

func (m *Memory) GetClient(_ context.Context, id string) (client.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return client.Client{}, core.NewNotFoundError("client", id)
	}
	return cloneClient(c), nil
}

func (m *Memory) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return core.NewNotFoundError("client", id)
	}
	// Ledger rows referencing the client stay behind for audit.
	delete(m.clients, id)
	return nil
}

// LedgerStore implementation --------------------------------------------------

func (m *Memory) CreateQuota(_ context.Context, e quota.Entry) (quota.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = m.nextIDLocked()
	e.CreatedAt = time.Now().UTC()
	e.Quota = cloneInt(e.Quota)
	if e.Quota == nil {
		e.Quota = big.NewInt(0)
	}

	m.quotas[e.ID] = e
	return cloneQuota(e), nil
}

func (m *Memory) GetQuota(_ context.Context, id int64) (quota.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.quotas[id]
	if !ok {
		return quota.Entry{}, core.NewNotFoundError("quota", "")
	}
	return cloneQuota(e), nil
}

func (m *Memory) DeleteQuota(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quotas[id]; !ok {
		return core.NewNotFoundError("quota", "")
	}
	delete(m.quotas, id)
	return nil
}

func (m *Memory) SumQuotasPaidBy(_ context.Context, accountID string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := big.NewInt(0)
	for _, e := range m.quotas {
		if e.PaidBy == accountID {
			sum.Add(sum, e.Quota)
		}
	}
	return sum, nil
}

// Reset clears all stored data. Tests use it between cases.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID = 1
	m.nodes = make(map[string]node.RegisteredNode)
	m.clients = make(map[string]client.Client)
	m.quotas = make(map[int64]quota.Entry)
	m.fundings = nil
}

// clone helpers keep callers from aliasing store-owned state.

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneNode(n node.RegisteredNode) node.RegisteredNode {
	n.TotalAmountFunded = cloneInt(n.TotalAmountFunded)
	return n
}

func cloneClient(c client.Client) client.Client {
	c.Labels = append([]string(nil), c.Labels...)
	return c
}

func cloneQuota(e quota.Entry) quota.Entry {
	e.Quota = cloneInt(e.Quota)
	return e
}

func cloneFunding(req node.FundingRequest) node.FundingRequest {
	req.Amount = cloneInt(req.Amount)
	return req
}

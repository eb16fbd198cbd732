// Package registry owns the lifecycle of registered relay nodes.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/storage"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// CommitmentChecker reports whether a node's on-chain commitment satisfies
// the listing policy. An error wrapping core.ErrIndeterminate means the check
// could not complete and must not trigger a status transition.
type CommitmentChecker interface {
	CheckCommitment(ctx context.Context, nodeID string) (bool, error)
}

// Service manages registered node records and their funding history.
type Service struct {
	store storage.RegistryStore
	log   *logger.Logger
}

// New constructs a node registry service.
func New(store storage.RegistryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{store: store, log: log}
}

// Register inserts a new node. The node always starts in status FRESH with a
// zero funded amount, regardless of what the caller supplied.
func (s *Service) Register(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		return node.RegisteredNode{}, core.RequiredError("id")
	}
	if strings.TrimSpace(n.APIEndpoint) == "" {
		return node.RegisteredNode{}, core.RequiredError("api_endpoint")
	}

	n.Status = node.StatusFresh
	n.TotalAmountFunded = big.NewInt(0)

	created, err := s.store.CreateNode(ctx, n)
	if err != nil {
		return node.RegisteredNode{}, err
	}
	s.log.WithField("node_id", created.ID).
		WithField("has_exit_node", created.HasExitNode).
		Info("node registered")
	return created, nil
}

// Get returns one node by id.
func (s *Service) Get(ctx context.Context, id string) (node.RegisteredNode, error) {
	return s.store.GetNode(ctx, id)
}

// List returns all nodes matching every supplied filter predicate. Unset
// filter fields impose no constraint.
func (s *Service) List(ctx context.Context, filter node.Filter) ([]node.RegisteredNode, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, core.NewValidationError("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}
	return s.store.ListNodes(ctx, filter)
}

// Update replaces a node record. CreatedAt is preserved and UpdatedAt is
// refreshed by the store.
func (s *Service) Update(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	if !n.Status.Valid() {
		return node.RegisteredNode{}, core.NewValidationError("status", fmt.Sprintf("unknown status %q", n.Status))
	}
	return s.store.UpdateNode(ctx, n)
}

// Delete removes a node. Deleting an absent id fails with NotFound rather
// than silently succeeding; callers needing idempotence must catch it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	s.log.WithField("node_id", id).Info("node deleted")
	return nil
}

// MarkUnusable transitions a node to UNUSABLE. The transition is one way;
// only an explicit Update by an operator can set any other status.
func (s *Service) MarkUnusable(ctx context.Context, id string) (node.RegisteredNode, error) {
	n, err := s.store.GetNode(ctx, id)
	if err != nil {
		return node.RegisteredNode{}, err
	}
	if n.Status == node.StatusUnusable {
		return n, nil
	}
	n.Status = node.StatusUnusable
	updated, err := s.store.UpdateNode(ctx, n)
	if err != nil {
		return node.RegisteredNode{}, err
	}
	s.log.WithField("node_id", id).Warn("node marked unusable")
	return updated, nil
}

// RecordFunding appends a funding request for the node. It does not touch
// TotalAmountFunded; callers confirm on-chain success first and then call
// ConfirmFunding.
func (s *Service) RecordFunding(ctx context.Context, nodeID, requestID string, amount *big.Int) (node.FundingRequest, error) {
	if strings.TrimSpace(requestID) == "" {
		return node.FundingRequest{}, core.RequiredError("request_id")
	}
	if amount == nil {
		return node.FundingRequest{}, core.RequiredError("amount")
	}

	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return node.FundingRequest{}, err
	}

	req, err := s.store.CreateFundingRequest(ctx, node.FundingRequest{
		RegisteredNodeID: nodeID,
		RequestID:        requestID,
		Amount:           amount,
	})
	if err != nil {
		return node.FundingRequest{}, err
	}
	s.log.WithField("node_id", nodeID).
		WithField("request_id", requestID).
		WithField("amount", amount.String()).
		Info("funding request recorded")
	return req, nil
}

// ConfirmFunding bumps the node's cumulative funded amount after the caller
// has confirmed the transfer on chain.
func (s *Service) ConfirmFunding(ctx context.Context, nodeID string, amount *big.Int) (node.RegisteredNode, error) {
	if amount == nil || amount.Sign() < 0 {
		return node.RegisteredNode{}, core.NewValidationError("amount", "must be a non-negative integer")
	}

	n, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return node.RegisteredNode{}, err
	}

	n.TotalAmountFunded = new(big.Int).Add(n.TotalAmountFunded, amount)
	updated, err := s.store.UpdateNode(ctx, n)
	if err != nil {
		return node.RegisteredNode{}, err
	}
	s.log.WithField("node_id", nodeID).
		WithField("total_amount_funded", updated.TotalAmountFunded.String()).
		Info("funding confirmed")
	return updated, nil
}

// FundingHistory lists all funding requests recorded for a node.
func (s *Service) FundingHistory(ctx context.Context, nodeID string) ([]node.FundingRequest, error) {
	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}
	return s.store.ListFundingRequests(ctx, nodeID)
}

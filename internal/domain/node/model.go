// Package node defines the registered relay node entities.
package node

import (
	"math/big"
	"time"
)

// Status is the lifecycle state of a registered node.
type Status string

const (
	// StatusFresh marks a newly registered node that may receive traffic.
	StatusFresh Status = "FRESH"
	// StatusUnusable marks a node withdrawn from listing, either by an
	// operator or by a failed commitment check. The transition is never
	// reverted automatically.
	StatusUnusable Status = "UNUSABLE"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusFresh || s == StatusUnusable
}

// RegisteredNode is a relay or exit node tracked by the discovery platform.
type RegisteredNode struct {
	ID                string
	ChainID           int64
	HasExitNode       bool
	APIEndpoint       string
	APIToken          string
	NativeAddress     string
	ExitNodePubKey    string
	HonestyScore      float64
	Status            Status
	TotalAmountFunded *big.Int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FundingRequest records one funding attempt for a node. Rows are immutable;
// funding the same node again produces a new row.
type FundingRequest struct {
	ID               int64
	RegisteredNodeID string
	RequestID        string
	Amount           *big.Int
	CreatedAt        time.Time
}

// Filter narrows a node listing. Nil pointer fields impose no constraint,
// which is distinct from an explicit false or empty value.
type Filter struct {
	HasExitNode *bool
	Status      *Status
	ExcludeIDs  []string
}

// Excluded reports whether id appears in the exclusion list.
func (f Filter) Excluded(id string) bool {
	for _, ex := range f.ExcludeIDs {
		if ex == id {
			return true
		}
	}
	return false
}

// Matches reports whether n satisfies every supplied predicate.
func (f Filter) Matches(n RegisteredNode) bool {
	if f.HasExitNode != nil && n.HasExitNode != *f.HasExitNode {
		return false
	}
	if f.Status != nil && n.Status != *f.Status {
		return false
	}
	return !f.Excluded(n.ID)
}

package graph

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// ChannelFetcher retrieves a node's open-channel snapshot.
type ChannelFetcher interface {
	GetChannels(ctx context.Context, nodeID string) (Snapshot, error)
}

// IsCommitted reports whether the snapshot satisfies both thresholds. Both
// comparisons are inclusive. An empty channel set counts as zero channels and
// zero balance, so it fails any positive threshold: a node with no observed
// channels cannot be presumed committed.
func IsCommitted(snap Snapshot, minBalance *big.Int, minChannels int) bool {
	if snap.ChannelCount() < minChannels {
		return false
	}
	if minBalance == nil {
		return true
	}
	return snap.TotalBalance().Cmp(minBalance) >= 0
}

// VerifierConfig controls commitment verification.
type VerifierConfig struct {
	// MinBalance is the minimum total balance across open channels.
	MinBalance *big.Int
	// MinChannels is the minimum number of open channels.
	MinChannels int
	// Timeout bounds each indexer fetch.
	Timeout time.Duration
	// SkipCheck forces verification to report committed without fetching,
	// for environments without a live indexer.
	SkipCheck bool
}

// Verifier applies the commitment policy using snapshots from an indexer.
type Verifier struct {
	fetcher ChannelFetcher
	cfg     VerifierConfig
	log     *logger.Logger
}

// NewVerifier constructs a Verifier over the given fetcher.
func NewVerifier(fetcher ChannelFetcher, cfg VerifierConfig, log *logger.Logger) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinBalance == nil {
		cfg.MinBalance = big.NewInt(0)
	}
	if log == nil {
		log = logger.NewDefault("commitment-verifier")
	}
	return &Verifier{fetcher: fetcher, cfg: cfg, log: log}
}

// CheckCommitment fetches the node's snapshot and applies IsCommitted. Fetch
// failures and timeouts return an error wrapping core.ErrIndeterminate; the
// boolean result is only meaningful when the error is nil. Callers must not
// treat an indeterminate outcome as proof of non-commitment.
func (v *Verifier) CheckCommitment(ctx context.Context, nodeID string) (bool, error) {
	if v.cfg.SkipCheck {
		v.log.WithField("node_id", nodeID).Debug("commitment check skipped by configuration")
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	snap, err := v.fetcher.GetChannels(ctx, nodeID)
	if err != nil {
		return false, fmt.Errorf("check commitment for %s: %w", nodeID, err)
	}

	committed := IsCommitted(snap, v.cfg.MinBalance, v.cfg.MinChannels)
	v.log.WithField("node_id", nodeID).
		WithField("channels", snap.ChannelCount()).
		WithField("total_balance", snap.TotalBalance().String()).
		WithField("committed", committed).
		Debug("commitment evaluated")
	return committed, nil
}

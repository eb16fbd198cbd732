package graph

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rpch-net/discovery-platform/internal/core"
)

func snapshotOf(balances ...int64) Snapshot {
	var snap Snapshot
	for i, b := range balances {
		snap.Channels = append(snap.Channels, Channel{
			ID:      string(rune('a' + i)),
			Balance: big.NewInt(b),
		})
	}
	return snap
}

func TestIsCommitted_EmptySnapshotFailsPositiveThresholds(t *testing.T) {
	if IsCommitted(Snapshot{}, big.NewInt(1), 1) {
		t.Fatal("empty snapshot must not be committed against positive thresholds")
	}
}

func TestIsCommitted_ThresholdsInclusive(t *testing.T) {
	snap := snapshotOf(5, 5)

	if !IsCommitted(snap, big.NewInt(10), 2) {
		t.Fatal("exact balance and channel count must satisfy inclusive thresholds")
	}
	if IsCommitted(snap, big.NewInt(11), 2) {
		t.Fatal("balance one short of threshold must fail")
	}
	if IsCommitted(snap, big.NewInt(10), 3) {
		t.Fatal("channel count one short of threshold must fail")
	}
}

func TestIsCommitted_Monotone(t *testing.T) {
	minBalance := big.NewInt(100)
	minChannels := 2

	base := snapshotOf(60, 40)
	if !IsCommitted(base, minBalance, minChannels) {
		t.Fatal("base snapshot expected committed")
	}

	// Raising the balance while holding the channel count fixed never
	// uncommits, and neither does adding channels.
	moreBalance := snapshotOf(60, 500)
	if !IsCommitted(moreBalance, minBalance, minChannels) {
		t.Fatal("increasing balance must preserve committed result")
	}
	moreChannels := snapshotOf(60, 40, 1)
	if !IsCommitted(moreChannels, minBalance, minChannels) {
		t.Fatal("increasing channel count must preserve committed result")
	}
}

func TestIsCommitted_LargeBalances(t *testing.T) {
	huge, ok := new(big.Int).SetString("100000000000000000000000000000000", 10)
	if !ok {
		t.Fatal("parse huge balance")
	}
	snap := Snapshot{Channels: []Channel{{ID: "c1", Balance: huge}}}

	if !IsCommitted(snap, huge, 1) {
		t.Fatal("expected committed at exact arbitrary-precision threshold")
	}
}

type fetcherFunc func(ctx context.Context, nodeID string) (Snapshot, error)

func (f fetcherFunc) GetChannels(ctx context.Context, nodeID string) (Snapshot, error) {
	return f(ctx, nodeID)
}

func TestVerifier_SkipCheckNeverFetches(t *testing.T) {
	fetched := false
	v := NewVerifier(fetcherFunc(func(context.Context, string) (Snapshot, error) {
		fetched = true
		return Snapshot{}, nil
	}), VerifierConfig{MinBalance: big.NewInt(1), MinChannels: 1, SkipCheck: true}, nil)

	committed, err := v.CheckCommitment(context.Background(), "peer1")
	if err != nil {
		t.Fatalf("check commitment: %v", err)
	}
	if !committed {
		t.Fatal("skip flag must force a committed result")
	}
	if fetched {
		t.Fatal("skip flag must not attempt a fetch")
	}
}

func TestVerifier_FetchFailureIsIndeterminate(t *testing.T) {
	v := NewVerifier(fetcherFunc(func(context.Context, string) (Snapshot, error) {
		return Snapshot{}, core.ErrIndeterminate
	}), VerifierConfig{MinBalance: big.NewInt(1), MinChannels: 1}, nil)

	_, err := v.CheckCommitment(context.Background(), "peer1")
	if !core.IsIndeterminate(err) {
		t.Fatalf("expected indeterminate outcome, got %v", err)
	}
}

func TestVerifier_TimeoutIsBounded(t *testing.T) {
	v := NewVerifier(fetcherFunc(func(ctx context.Context, _ string) (Snapshot, error) {
		<-ctx.Done()
		return Snapshot{}, core.ErrIndeterminate
	}), VerifierConfig{MinBalance: big.NewInt(1), MinChannels: 1, Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := v.CheckCommitment(context.Background(), "peer1")
	if !core.IsIndeterminate(err) {
		t.Fatalf("expected indeterminate outcome, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("check did not honor the verification timeout")
	}
}

func TestVerifier_CommittedAndNotCommitted(t *testing.T) {
	snap := snapshotOf(30, 80)
	v := NewVerifier(fetcherFunc(func(context.Context, string) (Snapshot, error) {
		return snap, nil
	}), VerifierConfig{MinBalance: big.NewInt(100), MinChannels: 2}, nil)

	committed, err := v.CheckCommitment(context.Background(), "peer1")
	if err != nil {
		t.Fatalf("check commitment: %v", err)
	}
	if !committed {
		t.Fatal("expected committed")
	}

	strict := NewVerifier(fetcherFunc(func(context.Context, string) (Snapshot, error) {
		return snap, nil
	}), VerifierConfig{MinBalance: big.NewInt(1000), MinChannels: 2}, nil)

	committed, err = strict.CheckCommitment(context.Background(), "peer1")
	if err != nil {
		t.Fatalf("check commitment: %v", err)
	}
	if committed {
		t.Fatal("expected not committed below balance threshold")
	}
}

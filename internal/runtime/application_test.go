package runtime

import (
	"context"
	"math/big"
	"testing"
	"time"
)

func TestNewApplicationWithMemoryStores(t *testing.T) {
	t.Setenv("SKIP_CHECK_COMMITMENT", "true")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CACHE_REDIS_URL", "")
	t.Setenv("SERVER_PORT", "0")

	_, err := NewApplication(context.Background())
	if err == nil {
		t.Fatal("expected port 0 to be rejected")
	}

	t.Setenv("SERVER_PORT", "3020")
	app, err := NewApplication(context.Background())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	if app.Registry() == nil || app.Quota() == nil {
		t.Fatal("expected services to be wired")
	}

	// services are usable without running the server
	ctx := context.Background()
	c, err := app.Quota().CreateTrialClient(ctx, []string{"test"})
	if err != nil {
		t.Fatalf("create trial client: %v", err)
	}
	balance, err := app.Quota().BalanceOf(ctx, c.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected trial balance 100, got %s", balance)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Setenv("SKIP_CHECK_COMMITMENT", "true")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "3021")
	t.Setenv("SWEEPER_ENABLED", "false")

	app, err := NewApplication(context.Background())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

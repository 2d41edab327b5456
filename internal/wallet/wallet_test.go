package wallet

import (
	"context"
	"testing"
	"time"

	"trading-core/internal/money"
)

func newRunning(t *testing.T) (*Custodian, context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := New()
	go c.Run(ctx)
	time.Sleep(time.Millisecond)
	return c, ctx, cancel
}

func TestCreateWalletSeedsBalance(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	if err := c.CreateWallet(ctx, "alice"); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	bal, found, err := c.GetBalance(ctx, "alice")
	if err != nil || !found || !bal.Equal(money.SeedBalance) {
		t.Fatalf("got bal=%s found=%v err=%v", bal, found, err)
	}
}

func TestCreateWalletTwiceFails(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	must(t, c.CreateWallet(ctx, "alice"))
	err := c.CreateWallet(ctx, "alice")
	we, ok := err.(*Error)
	if !ok || we.Kind != KindAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestGetBalanceMissingWallet(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	_, found, err := c.GetBalance(ctx, "ghost")
	if err != nil || found {
		t.Fatalf("expected found=false, got found=%v err=%v", found, err)
	}
}

func TestCreditDebitMissingWalletSymmetric(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	if err := c.Credit(ctx, "ghost", money.New(10)); err == nil {
		t.Fatal("expected NoSuchWallet on Credit to missing wallet")
	}
	if err := c.Debit(ctx, "ghost", money.New(10)); err == nil {
		t.Fatal("expected NoSuchWallet on Debit to missing wallet")
	}
}

func TestCreditDebitRoundTrip(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	must(t, c.CreateWallet(ctx, "alice"))
	must(t, c.Debit(ctx, "alice", money.New(500)))
	must(t, c.Credit(ctx, "alice", money.New(200)))

	bal, _, _ := c.GetBalance(ctx, "alice")
	want := money.SeedBalance.Sub(money.New(300))
	if !bal.Equal(want) {
		t.Fatalf("bal=%s want=%s", bal, want)
	}
}

// TestFIFOOrdering submits two commands and verifies the second observes
// the effect of the first, matching the custodian's strict per-inbox FIFO.
func TestFIFOOrdering(t *testing.T) {
	c, ctx, cancel := newRunning(t)
	defer cancel()

	must(t, c.CreateWallet(ctx, "alice"))
	must(t, c.Debit(ctx, "alice", money.New(1)))
	bal, _, _ := c.GetBalance(ctx, "alice")
	if !bal.Equal(money.SeedBalance.Sub(money.New(1))) {
		t.Fatalf("FIFO violated: got %s", bal)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

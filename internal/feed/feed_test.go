package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-core/internal/money"
)

type captureSink struct {
	mu    sync.Mutex
	ticks []money.D
}

func (c *captureSink) OnPriceUpdate(bid, ask money.D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = append(c.ticks, bid, ask)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks) / 2
}

func TestParseBookTicker(t *testing.T) {
	bid, ask, err := parseBookTicker([]byte(`{"b":"64321.50","a":"64321.90"}`))
	if err != nil {
		t.Fatalf("parseBookTicker: %v", err)
	}
	if !bid.Equal(money.New(64321.5)) || !ask.Equal(money.New(64321.9)) {
		t.Fatalf("got bid=%s ask=%s", bid, ask)
	}
}

func TestParseBookTickerRejectsGarbage(t *testing.T) {
	cases := []string{
		`not json`,
		`{"b":"","a":"1"}`,
		`{"b":"1","a":"abc"}`,
	}
	for _, raw := range cases {
		if _, _, err := parseBookTicker([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestSyntheticPacesTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	s := &Synthetic{Sink: sink, StartPrice: 100, Step: 0.5, Spread: 0.1, TicksPerSec: 200}
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for sink.count() < 5 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks after 2s", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i := 0; i+1 < len(sink.ticks); i += 2 {
		bid, ask := sink.ticks[i], sink.ticks[i+1]
		if !bid.IsPositive() {
			t.Fatalf("tick %d: bid %s not positive", i/2, bid)
		}
		if !ask.Sub(bid).Equal(money.New(0.1)) {
			t.Fatalf("tick %d: spread %s, want 0.1", i/2, ask.Sub(bid))
		}
	}
}

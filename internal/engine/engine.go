// Package engine wires the three custodians and the shared price cell
// into the single entry point a process actually calls: OnPriceUpdate
// from the price-ingestion transport, and the Open/Close/List/Balance
// command API from whatever frontend (HTTP, bus) sits in front of it.
package engine

import (
	"context"

	"github.com/google/uuid"

	"trading-core/internal/events"
	"trading-core/internal/monitor"
	"trading-core/internal/money"
	"trading-core/internal/position"
	"trading-core/internal/pricecell"
	"trading-core/internal/wallet"
)

// Engine is the façade a process constructs once at startup.
type Engine struct {
	cell      *pricecell.Cell
	wallets   *wallet.Custodian
	positions *position.Custodian
	bus       *events.Bus
	metrics   *monitor.SystemMetrics
}

// New builds an Engine with default inbox sizes. bus and metrics may be
// nil; Run starts the custodian goroutines before any command can be
// issued.
func New(bus *events.Bus, metrics *monitor.SystemMetrics) *Engine {
	return NewSized(bus, metrics, 0, 0)
}

// NewSized builds an Engine with explicit custodian inbox capacities,
// typically from config. Non-positive values fall back to defaults.
func NewSized(bus *events.Bus, metrics *monitor.SystemMetrics, walletInbox, positionInbox int) *Engine {
	cell := &pricecell.Cell{}
	wallets := wallet.NewWithCapacity(walletInbox)
	positions := position.NewWithCapacity(cell, wallets, func() string { return uuid.NewString() }, positionInbox)
	e := &Engine{cell: cell, wallets: wallets, positions: positions, bus: bus, metrics: metrics}
	positions.OnLiquidate = func(userID, positionID string) {
		if e.bus != nil {
			e.bus.Publish(events.EventPositionLiquidated, events.PositionLiquidated{UserID: userID, PositionID: positionID})
		}
		if e.metrics != nil {
			e.metrics.IncrementLiquidations()
		}
	}
	return e
}

// Run starts the wallet and position custodian goroutines. It blocks
// until ctx is canceled, so callers typically invoke it with `go`.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	go func() {
		e.wallets.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		e.positions.Run(ctx)
		done <- struct{}{}
	}()
	<-ctx.Done()
	<-done
	<-done
}

// OnPriceUpdate publishes a new snapshot to the price cell and enqueues
// one UpdateRisk tick to the position custodian. It never blocks: the
// enqueue is non-blocking and coalesced (no new tick is queued while one
// is still pending, and a full inbox drops it), since revaluing against
// the latest snapshot subsumes any earlier pending tick.
func (e *Engine) OnPriceUpdate(bid, ask money.D) {
	e.cell.Store(bid, ask)
	e.positions.EnqueueUpdateRisk()
	if e.metrics != nil {
		e.metrics.IncrementTicks()
	}
}

// OpenOrderRequest is the command-API shape of an Open request.
type OpenOrderRequest = position.OpenRequest

// OpenOrder opens a new position for userID.
func (e *Engine) OpenOrder(ctx context.Context, userID string, req OpenOrderRequest) (string, error) {
	timer := monitor.NewTimer(e.openLatency())
	id, err := e.positions.Open(ctx, userID, req)
	timer.Stop()
	if err == nil {
		if e.bus != nil {
			e.bus.Publish(events.EventOrderOpened, events.OrderOpened{UserID: userID, PositionID: id})
		}
		if e.metrics != nil {
			e.metrics.IncrementOrdersOpened()
		}
	} else if e.metrics != nil {
		e.metrics.IncrementErrors()
	}
	return id, err
}

// CloseOrder closes an existing position for userID.
func (e *Engine) CloseOrder(ctx context.Context, userID, positionID string) error {
	timer := monitor.NewTimer(e.closeLatency())
	err := e.positions.Close(ctx, userID, positionID)
	timer.Stop()
	if err == nil {
		if e.bus != nil {
			e.bus.Publish(events.EventOrderClosed, events.OrderClosed{UserID: userID, PositionID: positionID})
		}
		if e.metrics != nil {
			e.metrics.IncrementOrdersClosed()
		}
	} else if e.metrics != nil {
		e.metrics.IncrementErrors()
	}
	return err
}

func (e *Engine) openLatency() *monitor.LatencyHistogram {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.OpenLatency
}

func (e *Engine) closeLatency() *monitor.LatencyHistogram {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.CloseLatency
}

// ListOrders returns userID's open positions.
func (e *Engine) ListOrders(ctx context.Context, userID string) ([]position.Position, bool, error) {
	return e.positions.List(ctx, userID)
}

// GetBalance returns userID's wallet balance.
func (e *Engine) GetBalance(ctx context.Context, userID string) (money.D, bool, error) {
	return e.wallets.GetBalance(ctx, userID)
}

// CreateWallet creates a new wallet for userID, seeded with money.SeedBalance.
func (e *Engine) CreateWallet(ctx context.Context, userID string) error {
	return e.wallets.CreateWallet(ctx, userID)
}

// Liquidations returns the number of positions liquidated by the risk
// engine so far, for monitoring.
func (e *Engine) Liquidations() uint64 {
	return e.positions.Liquidations()
}

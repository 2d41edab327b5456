// Package position is the sole owner of every user's open positions. A
// single goroutine drains the command inbox in arrival order; Open and
// Close each make one or more calls across to a wallet custodian and
// suspend on its reply, but nothing outside this package ever touches
// the position map directly.
package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"trading-core/internal/money"
	"trading-core/internal/pricecell"
	"trading-core/internal/wallet"
)

// WalletAPI is the narrow interface this package needs from a wallet
// custodian. Depending on this instead of a concrete type breaks the
// position↔wallet reference cycle: the position custodian holds a
// sender, not a pointer into the wallet's own state.
type WalletAPI interface {
	GetBalance(ctx context.Context, userID string) (money.D, bool, error)
	Credit(ctx context.Context, userID string, amount money.D) error
	Debit(ctx context.Context, userID string, amount money.D) error
}

// OpenKind categorizes an OpenError.
type OpenKind int

const (
	KindServerNotReady OpenKind = iota
	KindNoSuchWallet
	KindInsufficientFunds
	KindInvalidQuantity
	KindUnsupportedAsset
	KindWalletUnavailable
	KindWalletError
)

// SupportedAsset is the only tradable symbol.
const SupportedAsset = "BTC"

// OpenError is returned by Open.
type OpenError struct {
	Kind     OpenKind
	Balance  money.D
	Required money.D
	Inner    error
}

func (e *OpenError) Error() string {
	switch e.Kind {
	case KindServerNotReady:
		return "position: server not ready (no price tick observed yet)"
	case KindNoSuchWallet:
		return "position: no such wallet"
	case KindInsufficientFunds:
		return fmt.Sprintf("position: insufficient funds: have %s, need %s", e.Balance, e.Required)
	case KindInvalidQuantity:
		return "position: invalid quantity"
	case KindUnsupportedAsset:
		return "position: unsupported asset"
	case KindWalletUnavailable:
		return fmt.Sprintf("position: wallet unavailable: %v", e.Inner)
	default:
		return fmt.Sprintf("position: wallet error: %v", e.Inner)
	}
}

func (e *OpenError) Unwrap() error { return e.Inner }

// CloseKind categorizes a CloseError.
type CloseKind int

const (
	KindNoSuchUser CloseKind = iota
	KindNoSuchPosition
	KindCloseWalletUnavailable
	KindCloseWalletError
)

// CloseError is returned by Close.
type CloseError struct {
	Kind  CloseKind
	Inner error
}

func (e *CloseError) Error() string {
	switch e.Kind {
	case KindNoSuchUser:
		return "position: no such user"
	case KindNoSuchPosition:
		return "position: no such position"
	case KindCloseWalletUnavailable:
		return fmt.Sprintf("position: wallet unavailable: %v", e.Inner)
	default:
		return fmt.Sprintf("position: wallet error: %v", e.Inner)
	}
}

func (e *CloseError) Unwrap() error { return e.Inner }

// Position mirrors the data model: qty sign encodes side, pnl is a
// cached derived value recomputed by UpdateRisk.
type Position struct {
	PositionID string
	Asset      string
	EntryPrice money.D
	Qty        money.D
	PnL        money.D
	Margin     money.D
	StopLoss   *money.D
	TakeProfit *money.D
	Leverage   *money.D
}

// OpenRequest carries the fields a caller supplies to Open.
type OpenRequest struct {
	Asset      string
	Qty        money.D
	Margin     money.D
	StopLoss   *money.D
	TakeProfit *money.D
	Leverage   *money.D
}

// IDGenerator produces a fresh, globally unique position id.
type IDGenerator func() string

type opKind int

const (
	opOpen opKind = iota
	opClose
	opList
	opUpdateRisk
)

type result struct {
	positionID string
	positions  []Position
	found      bool
	err        error
}

type command struct {
	kind   opKind
	userID string
	req    OpenRequest
	posID  string
	reply  chan result
}

// Custodian owns the per-user position map exclusively.
type Custodian struct {
	inbox  chan command
	cell   *pricecell.Cell
	wallet WalletAPI
	newID  IDGenerator
	byUser map[string][]Position

	// liquidations is written from the custodian goroutine but read
	// from anywhere via Liquidations, so it stays atomic.
	liquidations atomic.Uint64

	// riskPending coalesces UpdateRisk ticks: at most one sits in the
	// inbox at a time, since revaluing against the latest snapshot
	// subsumes any earlier one.
	riskPending atomic.Bool

	// OnLiquidate, if set, is called synchronously (from the custodian's
	// own goroutine) after each successful liquidation close.
	OnLiquidate func(userID, positionID string)
}

const defaultInboxSize = 4096

// New builds a Custodian. cell is the shared price snapshot, walletAPI
// is the wallet custodian to debit/credit across, newID mints position
// ids (expected to supply at least 120 bits of entropy, e.g. uuid.NewString).
func New(cell *pricecell.Cell, walletAPI WalletAPI, newID IDGenerator) *Custodian {
	return NewWithCapacity(cell, walletAPI, newID, defaultInboxSize)
}

// NewWithCapacity builds a Custodian whose inbox is sized explicitly
// (e.g. from config). Non-positive capacities fall back to the default.
func NewWithCapacity(cell *pricecell.Cell, walletAPI WalletAPI, newID IDGenerator, capacity int) *Custodian {
	if capacity <= 0 {
		capacity = defaultInboxSize
	}
	return &Custodian{
		inbox:  make(chan command, capacity),
		cell:   cell,
		wallet: walletAPI,
		newID:  newID,
		byUser: make(map[string][]Position),
	}
}

// Run drains the inbox until ctx is canceled. Must run in exactly one
// goroutine for the lifetime of the Custodian.
func (c *Custodian) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.inbox:
			c.handle(ctx, cmd)
		}
	}
}

func (c *Custodian) handle(ctx context.Context, cmd command) {
	var res result
	switch cmd.kind {
	case opOpen:
		id, err := c.doOpen(ctx, cmd.userID, cmd.req)
		res = result{positionID: id, err: err}
	case opClose:
		err := c.doClose(ctx, cmd.userID, cmd.posID)
		res = result{err: err}
	case opList:
		positions, found := c.doList(cmd.userID)
		res = result{positions: positions, found: found}
	case opUpdateRisk:
		// Clear before revaluing so a tick landing mid-pass re-enqueues.
		c.riskPending.Store(false)
		c.doUpdateRisk(ctx)
	}

	if cmd.reply == nil {
		return
	}
	select {
	case cmd.reply <- res:
	default:
		log.Printf("⚠️ position: reply dropped for user %s", cmd.userID)
	}
}

func (c *Custodian) doOpen(ctx context.Context, userID string, req OpenRequest) (string, error) {
	if req.Qty.IsZero() {
		return "", &OpenError{Kind: KindInvalidQuantity}
	}
	if req.Asset != SupportedAsset {
		return "", &OpenError{Kind: KindUnsupportedAsset}
	}

	snap := c.cell.Load()
	if snap.Bid.IsZero() || snap.Ask.IsZero() {
		return "", &OpenError{Kind: KindServerNotReady}
	}

	long := req.Qty.Sign() > 0
	var entryPrice money.D
	if long {
		entryPrice = snap.Ask
	} else {
		entryPrice = snap.Bid
	}

	balance, found, err := c.wallet.GetBalance(ctx, userID)
	if err != nil {
		return "", &OpenError{Kind: KindWalletUnavailable, Inner: err}
	}
	if !found {
		return "", &OpenError{Kind: KindNoSuchWallet}
	}

	absQty := req.Qty.Abs()
	notional := entryPrice.Mul(absQty)
	required := notional.Add(req.Margin)
	if balance.LessThan(required) {
		return "", &OpenError{Kind: KindInsufficientFunds, Balance: balance, Required: required}
	}

	if err := c.wallet.Debit(ctx, userID, required); err != nil {
		// A typed wallet error bubbles up as-is; anything else is the
		// transport (closed reply channel, canceled context).
		var werr *wallet.Error
		if errors.As(err, &werr) {
			return "", &OpenError{Kind: KindWalletError, Inner: err}
		}
		return "", &OpenError{Kind: KindWalletUnavailable, Inner: err}
	}

	id := c.newID()
	pos := Position{
		PositionID: id,
		Asset:      req.Asset,
		EntryPrice: entryPrice,
		Qty:        req.Qty,
		PnL:        money.Zero,
		Margin:     req.Margin,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Leverage:   req.Leverage,
	}
	c.byUser[userID] = append(c.byUser[userID], pos)
	return id, nil
}

func (c *Custodian) doClose(ctx context.Context, userID, positionID string) error {
	list, ok := c.byUser[userID]
	if !ok {
		return &CloseError{Kind: KindNoSuchUser}
	}

	idx := -1
	for i, p := range list {
		if p.PositionID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &CloseError{Kind: KindNoSuchPosition}
	}

	pos := list[idx]
	snap := c.cell.Load()
	long := pos.Qty.Sign() > 0
	var exitPrice money.D
	if long {
		exitPrice = snap.Bid
	} else {
		exitPrice = snap.Ask
	}

	realized := exitPrice.Sub(pos.EntryPrice).Mul(pos.Qty)
	notionalReturned := pos.EntryPrice.Mul(pos.Qty.Abs())
	payout := notionalReturned.Add(realized).Add(pos.Margin)

	if err := c.wallet.Credit(ctx, userID, payout); err != nil {
		var werr *wallet.Error
		if errors.As(err, &werr) {
			return &CloseError{Kind: KindCloseWalletError, Inner: err}
		}
		return &CloseError{Kind: KindCloseWalletUnavailable, Inner: err}
	}

	c.byUser[userID] = append(list[:idx], list[idx+1:]...)
	return nil
}

func (c *Custodian) doList(userID string) ([]Position, bool) {
	list, ok := c.byUser[userID]
	if !ok {
		return nil, false
	}
	out := make([]Position, len(list))
	for i, p := range list {
		p.StopLoss = cloneDecimal(p.StopLoss)
		p.TakeProfit = cloneDecimal(p.TakeProfit)
		p.Leverage = cloneDecimal(p.Leverage)
		out[i] = p
	}
	return out, true
}

func cloneDecimal(d *money.D) *money.D {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func (c *Custodian) doUpdateRisk(ctx context.Context) {
	snap := c.cell.Load()
	type victim struct{ userID, posID string }
	var victims []victim

	for userID, list := range c.byUser {
		for i := range list {
			pos := &list[i]
			long := pos.Qty.Sign() > 0

			var mark money.D
			if long {
				mark = snap.Bid
			} else {
				mark = snap.Ask
			}
			pos.PnL = mark.Sub(pos.EntryPrice).Mul(pos.Qty)

			if c.shouldLiquidate(pos) {
				victims = append(victims, victim{userID: userID, posID: pos.PositionID})
				// Per-user cap: one liquidation candidate per tick, preserved
				// literally — remaining qualifying positions are revisited
				// on the next tick.
				break
			}
		}
	}

	for _, v := range victims {
		if err := c.doClose(ctx, v.userID, v.posID); err != nil {
			log.Printf("⚠️ position: liquidation close failed for user=%s pos=%s: %v", v.userID, v.posID, err)
			continue
		}
		c.liquidations.Add(1)
		log.Printf("🔥 position: liquidated user=%s pos=%s", v.userID, v.posID)
		if c.OnLiquidate != nil {
			c.OnLiquidate(v.userID, v.posID)
		}
	}
}

// shouldLiquidate evaluates margin exhaustion, then stop loss, then take
// profit; the first predicate that fires wins. The margin-exhaustion rule
// fires on large positive P&L, which reads as inverted; it is kept
// literal pending product review (see DESIGN.md).
func (c *Custodian) shouldLiquidate(pos *Position) bool {
	leverage := money.New(1)
	if pos.Leverage != nil {
		leverage = *pos.Leverage
	}
	initialMargin := pos.EntryPrice.Mul(pos.Qty.Abs()).Div(leverage).Add(pos.Margin)
	threshold := pos.PnL.Add(pos.Margin).Mul(money.LiquidationThreshold)
	if initialMargin.LessThan(threshold) {
		return true
	}

	if pos.StopLoss != nil && pos.PnL.LessThanOrEqual(pos.StopLoss.Neg()) {
		return true
	}

	if pos.TakeProfit != nil && pos.PnL.GreaterThanOrEqual(*pos.TakeProfit) {
		return true
	}

	return false
}

func (c *Custodian) send(ctx context.Context, cmd command) (result, error) {
	select {
	case c.inbox <- cmd:
	case <-ctx.Done():
		return result{}, fmt.Errorf("position: enqueue canceled: %w", ctx.Err())
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, fmt.Errorf("position: reply canceled: %w", ctx.Err())
	}
}

// Open opens a new position for userID, returning its fresh id.
func (c *Custodian) Open(ctx context.Context, userID string, req OpenRequest) (string, error) {
	res, err := c.send(ctx, command{kind: opOpen, userID: userID, req: req, reply: make(chan result, 1)})
	if err != nil {
		return "", err
	}
	return res.positionID, res.err
}

// Close closes an existing position.
func (c *Custodian) Close(ctx context.Context, userID, positionID string) error {
	res, err := c.send(ctx, command{kind: opClose, userID: userID, posID: positionID, reply: make(chan result, 1)})
	if err != nil {
		return err
	}
	return res.err
}

// List returns a deep copy of userID's open positions, and whether the
// user has any record at all (distinguishing empty-list from missing-user).
func (c *Custodian) List(ctx context.Context, userID string) ([]Position, bool, error) {
	res, err := c.send(ctx, command{kind: opList, userID: userID, reply: make(chan result, 1)})
	if err != nil {
		return nil, false, err
	}
	return res.positions, res.found, nil
}

// EnqueueUpdateRisk enqueues a fire-and-forget UpdateRisk tick. It never
// blocks the caller, and ticks coalesce: while one UpdateRisk is already
// queued, further calls are no-ops, because the queued pass will revalue
// against whatever snapshot is latest when it runs.
func (c *Custodian) EnqueueUpdateRisk() {
	if !c.riskPending.CompareAndSwap(false, true) {
		return
	}
	select {
	case c.inbox <- command{kind: opUpdateRisk}:
	default:
		c.riskPending.Store(false)
		log.Printf("⚠️ position: UpdateRisk dropped, inbox full")
	}
}

// Liquidations returns the number of positions liquidated so far.
func (c *Custodian) Liquidations() uint64 {
	return c.liquidations.Load()
}

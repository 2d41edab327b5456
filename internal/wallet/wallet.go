// Package wallet is the sole owner of every user's balance. A single
// goroutine drains the command inbox in arrival order; nothing else ever
// touches the balance map, so there is no lock to take and no race to
// avoid.
package wallet

import (
	"context"
	"fmt"
	"log"

	"trading-core/internal/money"
)

// Kind categorizes a WalletError for caller-side dispatch.
type Kind int

const (
	// KindNoSuchWallet means the user_id has no wallet on record.
	KindNoSuchWallet Kind = iota
	// KindAlreadyExists means CreateWallet was called twice for the same user.
	KindAlreadyExists
)

// Error is the typed error returned by wallet operations.
type Error struct {
	Kind   Kind
	UserID string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAlreadyExists:
		return fmt.Sprintf("wallet: %s already exists", e.UserID)
	default:
		return fmt.Sprintf("wallet: no such wallet for %s", e.UserID)
	}
}

func errNoSuchWallet(userID string) error { return &Error{Kind: KindNoSuchWallet, UserID: userID} }
func errAlreadyExists(userID string) error { return &Error{Kind: KindAlreadyExists, UserID: userID} }

type opKind int

const (
	opGetBalance opKind = iota
	opCredit
	opDebit
	opCreateWallet
)

type result struct {
	balance money.D
	found   bool
	err     error
}

type command struct {
	kind   opKind
	userID string
	amount money.D
	reply  chan result
}

// Custodian owns the balance map exclusively. Create one with New and
// call Run in its own goroutine; every other method just enqueues a
// command and waits on its reply channel.
type Custodian struct {
	inbox    chan command
	balances map[string]money.D
}

// defaultInboxSize is used by New; NewWithCapacity lets a caller size
// the inbox explicitly (e.g. from config).
const defaultInboxSize = 4096

// New builds a Custodian with an inbox buffered generously so producers
// rarely wait on the queue; the buffer bounds how far ahead of the
// consumer producers can race, and a sender blocks (until its context
// ends) while the inbox is full.
func New() *Custodian {
	return NewWithCapacity(defaultInboxSize)
}

// NewWithCapacity builds a Custodian whose inbox is sized explicitly.
func NewWithCapacity(capacity int) *Custodian {
	if capacity <= 0 {
		capacity = defaultInboxSize
	}
	return &Custodian{
		inbox:    make(chan command, capacity),
		balances: make(map[string]money.D),
	}
}

// Run drains the inbox until ctx is canceled. It must run in exactly one
// goroutine for the lifetime of the Custodian.
func (c *Custodian) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.inbox:
			c.handle(cmd)
		}
	}
}

func (c *Custodian) handle(cmd command) {
	var res result
	switch cmd.kind {
	case opGetBalance:
		bal, ok := c.balances[cmd.userID]
		res = result{balance: bal, found: ok}

	case opCredit:
		bal, ok := c.balances[cmd.userID]
		if !ok {
			res = result{err: errNoSuchWallet(cmd.userID)}
			break
		}
		bal = bal.Add(cmd.amount)
		c.balances[cmd.userID] = bal
		res = result{balance: bal, found: true}

	case opDebit:
		bal, ok := c.balances[cmd.userID]
		if !ok {
			res = result{err: errNoSuchWallet(cmd.userID)}
			break
		}
		// No overdraft check here: the wallet is a dumb ledger, callers
		// (the position custodian) verify sufficiency before sending Debit.
		bal = bal.Sub(cmd.amount)
		c.balances[cmd.userID] = bal
		res = result{balance: bal, found: true}

	case opCreateWallet:
		if _, ok := c.balances[cmd.userID]; ok {
			res = result{err: errAlreadyExists(cmd.userID)}
			break
		}
		c.balances[cmd.userID] = money.SeedBalance
		res = result{balance: money.SeedBalance, found: true}
	}

	select {
	case cmd.reply <- res:
	default:
		// Requester already gave up on the reply channel; log and move on,
		// the custodian never stalls waiting for a caller.
		log.Printf("⚠️ wallet: reply dropped for user %s (kind=%d)", cmd.userID, cmd.kind)
	}
}

func (c *Custodian) send(ctx context.Context, cmd command) (result, error) {
	select {
	case c.inbox <- cmd:
	case <-ctx.Done():
		return result{}, fmt.Errorf("wallet: enqueue canceled: %w", ctx.Err())
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, fmt.Errorf("wallet: reply canceled: %w", ctx.Err())
	}
}

// GetBalance returns the current balance and whether the wallet exists.
func (c *Custodian) GetBalance(ctx context.Context, userID string) (money.D, bool, error) {
	res, err := c.send(ctx, command{kind: opGetBalance, userID: userID, reply: make(chan result, 1)})
	if err != nil {
		return money.Zero, false, err
	}
	return res.balance, res.found, nil
}

// Credit adds amount to the user's balance. amount must be ≥ 0.
func (c *Custodian) Credit(ctx context.Context, userID string, amount money.D) error {
	res, err := c.send(ctx, command{kind: opCredit, userID: userID, amount: amount, reply: make(chan result, 1)})
	if err != nil {
		return err
	}
	return res.err
}

// Debit subtracts amount from the user's balance. amount must be ≥ 0.
// No overdraft check is performed at this layer; callers (the position
// custodian) verify sufficiency before sending Debit.
func (c *Custodian) Debit(ctx context.Context, userID string, amount money.D) error {
	res, err := c.send(ctx, command{kind: opDebit, userID: userID, amount: amount, reply: make(chan result, 1)})
	if err != nil {
		return err
	}
	return res.err
}

// CreateWallet inserts a new wallet for userID seeded with money.SeedBalance.
// Returns a Kind=KindAlreadyExists error if the user already has a wallet.
func (c *Custodian) CreateWallet(ctx context.Context, userID string) error {
	res, err := c.send(ctx, command{kind: opCreateWallet, userID: userID, reply: make(chan result, 1)})
	if err != nil {
		return err
	}
	return res.err
}

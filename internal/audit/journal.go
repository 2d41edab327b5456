// Package audit persists the position lifecycle as a durable record: an
// optional, non-blocking collaborator that subscribes to the event bus
// and journals every open, close, and liquidation to sqlite. Nothing in
// the wallet/position hot path ever waits on it; it drains its own
// subscription channel in its own goroutine and batches writes.
package audit

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trading-core/internal/events"
)

// writeOp is a single buffered statement plus its arguments, executed
// inside a batched transaction.
type writeOp struct {
	query string
	args  []any
}

// Journal batches position lifecycle events into sqlite, flushing on a
// timer or when the buffer fills. The vocabulary is fixed to the three
// events the engine publishes.
type Journal struct {
	db       *sql.DB
	mu       sync.Mutex
	buffer   []writeOp
	maxSize  int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
}

// Stats reports how many records and batches have been written and how
// many batches failed, for operator visibility.
func (j *Journal) Stats() (writes, batches, errors uint64) {
	return j.totalWrites.Load(), j.totalBatches.Load(), j.totalErrors.Load()
}

// New builds a Journal over an already-migrated sqlite handle. maxSize
// and interval bound how long a record can sit unflushed; both fall
// back to defaults (50 ops / 500ms) when non-positive.
func New(db *sql.DB, maxSize int, interval time.Duration) *Journal {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	j := &Journal{
		db:       db,
		buffer:   make([]writeOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	j.wg.Add(1)
	go j.backgroundFlush()
	return j
}

// Subscribe attaches the journal to bus as a subscriber of the three
// domain events the engine publishes. It never blocks the publisher:
// the bus already drops on a full subscriber channel, and this loop
// only buffers in-process before a batched sqlite write.
func (j *Journal) Subscribe(ctx context.Context, bus *events.Bus) {
	opened, unsubO := bus.Subscribe(events.EventOrderOpened, 256)
	closed, unsubC := bus.Subscribe(events.EventOrderClosed, 256)
	liquidated, unsubL := bus.Subscribe(events.EventPositionLiquidated, 256)

	go func() {
		defer unsubO()
		defer unsubC()
		defer unsubL()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-opened:
				if !ok {
					return
				}
				if e, ok := msg.(events.OrderOpened); ok {
					j.record("order.opened", e.UserID, e.PositionID)
				}
			case msg, ok := <-closed:
				if !ok {
					return
				}
				if e, ok := msg.(events.OrderClosed); ok {
					j.record("order.closed", e.UserID, e.PositionID)
				}
			case msg, ok := <-liquidated:
				if !ok {
					return
				}
				if e, ok := msg.(events.PositionLiquidated); ok {
					j.record("position.liquidated", e.UserID, e.PositionID)
				}
			}
		}
	}()
}

func (j *Journal) record(event, userID, positionID string) {
	j.write(writeOp{
		query: "INSERT INTO position_events (event, user_id, position_id) VALUES (?, ?, ?)",
		args:  []any{event, userID, positionID},
	})
}

func (j *Journal) write(op writeOp) {
	j.mu.Lock()
	j.buffer = append(j.buffer, op)
	shouldFlush := len(j.buffer) >= j.maxSize
	j.mu.Unlock()

	if shouldFlush {
		j.Flush()
	}
}

// Flush writes every buffered record inside one transaction.
func (j *Journal) Flush() error {
	j.mu.Lock()
	if len(j.buffer) == 0 {
		j.mu.Unlock()
		return nil
	}
	ops := j.buffer
	j.buffer = make([]writeOp, 0, j.maxSize)
	j.mu.Unlock()

	return j.executeBatch(ops)
}

func (j *Journal) executeBatch(ops []writeOp) error {
	j.totalWrites.Add(uint64(len(ops)))
	j.totalBatches.Add(1)

	tx, err := j.db.Begin()
	if err != nil {
		j.totalErrors.Add(1)
		log.Printf("❌ audit: failed to begin transaction: %v", err)
		return err
	}
	for _, op := range ops {
		if _, err := tx.Exec(op.query, op.args...); err != nil {
			tx.Rollback()
			j.totalErrors.Add(1)
			log.Printf("❌ audit: insert failed, rolling back: %v", err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		j.totalErrors.Add(1)
		log.Printf("❌ audit: commit failed: %v", err)
		return err
	}
	return nil
}

func (j *Journal) backgroundFlush() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := j.Flush(); err != nil {
				log.Printf("⚠️ audit: background flush error: %v", err)
			}
		case <-j.done:
			if err := j.Flush(); err != nil {
				log.Printf("⚠️ audit: final flush error: %v", err)
			}
			return
		}
	}
}

// Close flushes any remaining records and stops the background ticker.
func (j *Journal) Close() error {
	close(j.done)
	j.wg.Wait()
	return nil
}

// Pending returns the number of records buffered but not yet flushed.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buffer)
}

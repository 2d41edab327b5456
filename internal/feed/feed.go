// Package feed supplies the engine with its price tape. Two sources are
// provided: a websocket subscriber for a live book-ticker stream, and a
// synthetic random-walk generator for local development and load tests.
// Both push into a Sink and never read engine state.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"trading-core/internal/money"
)

// Sink receives each parsed tick. The engine's OnPriceUpdate satisfies it.
type Sink interface {
	OnPriceUpdate(bid, ask money.D)
}

// ReconnectConfig defines the reconnection behavior of the websocket feed.
type ReconnectConfig struct {
	Enabled      bool          // Whether auto-reconnect is enabled
	MaxRetries   int           // Maximum number of reconnection attempts (0 = 100 attempts)
	InitialDelay time.Duration // Initial delay before first reconnect attempt
	MaxDelay     time.Duration // Maximum delay between reconnect attempts
	Multiplier   float64       // Delay multiplier for exponential backoff
}

// DefaultReconnectConfig returns sensible defaults for reconnection.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		Enabled:      true,
		MaxRetries:   10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// WSFeed subscribes to a public book-ticker websocket stream and pushes
// each best-bid/best-ask update into Sink.
type WSFeed struct {
	URL             string
	Sink            Sink
	ReconnectConfig *ReconnectConfig
	dialer          *websocket.Dialer
}

// NewWSFeed builds a websocket feed for the given stream URL.
func NewWSFeed(url string, sink Sink) *WSFeed {
	return &WSFeed{
		URL:             url,
		Sink:            sink,
		ReconnectConfig: DefaultReconnectConfig(),
		dialer:          websocket.DefaultDialer,
	}
}

// bookTicker is the wire shape of a best bid/ask update. Prices arrive
// as strings and are parsed as decimals, never through a float.
type bookTicker struct {
	Bid string `json:"b"`
	Ask string `json:"a"`
}

func parseBookTicker(msg []byte) (bid, ask money.D, err error) {
	var bt bookTicker
	if err = json.Unmarshal(msg, &bt); err != nil {
		return money.Zero, money.Zero, fmt.Errorf("decode book ticker: %w", err)
	}
	bid, err = decimal.NewFromString(bt.Bid)
	if err != nil {
		return money.Zero, money.Zero, fmt.Errorf("parse bid %q: %w", bt.Bid, err)
	}
	ask, err = decimal.NewFromString(bt.Ask)
	if err != nil {
		return money.Zero, money.Zero, fmt.Errorf("parse ask %q: %w", bt.Ask, err)
	}
	return bid, ask, nil
}

// calculateBackoff returns the delay for the given retry attempt using
// exponential backoff.
func (f *WSFeed) calculateBackoff(attempt int) time.Duration {
	if f.ReconnectConfig == nil {
		return time.Second
	}
	delay := float64(f.ReconnectConfig.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= f.ReconnectConfig.Multiplier
	}
	if delay > float64(f.ReconnectConfig.MaxDelay) {
		return f.ReconnectConfig.MaxDelay
	}
	return time.Duration(delay)
}

// Start dials the stream and pumps ticks into Sink until ctx is canceled
// or stop is called. It returns a stop function; the initial dial error
// is returned synchronously so a misconfigured URL fails fast.
func (f *WSFeed) Start(ctx context.Context) (func(), error) {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial price stream: %w", err)
	}

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	var mu sync.Mutex
	currentConn := conn

	stop := func() {
		stopOnce.Do(func() {
			close(stopCh)
			mu.Lock()
			if currentConn != nil {
				_ = currentConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = currentConn.Close()
			}
			mu.Unlock()
		})
	}

	reconnect := func() (*websocket.Conn, error) {
		if f.ReconnectConfig == nil || !f.ReconnectConfig.Enabled {
			return nil, fmt.Errorf("reconnect disabled")
		}

		maxRetries := f.ReconnectConfig.MaxRetries
		if maxRetries == 0 {
			maxRetries = 100
		}

		for attempt := 0; attempt < maxRetries; attempt++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-stopCh:
				return nil, fmt.Errorf("stopped")
			default:
			}

			delay := f.calculateBackoff(attempt)
			log.Printf("🔄 feed: reconnecting in %v (attempt %d/%d)", delay, attempt+1, maxRetries)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-stopCh:
				return nil, fmt.Errorf("stopped")
			}

			newConn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
			if err != nil {
				log.Printf("❌ feed: reconnect failed: %v", err)
				continue
			}

			log.Printf("✅ feed: reconnected")
			return newConn, nil
		}
		return nil, fmt.Errorf("max retries (%d) exceeded", maxRetries)
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}

			mu.Lock()
			activeConn := currentConn
			mu.Unlock()

			if activeConn == nil {
				return
			}

			_, msg, err := activeConn.ReadMessage()
			if err != nil {
				select {
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				default:
				}

				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}

				log.Printf("⚠️ feed: websocket read error: %v", err)

				newConn, reconErr := reconnect()
				if reconErr != nil {
					log.Printf("❌ feed: giving up: %v", reconErr)
					return
				}
				mu.Lock()
				currentConn = newConn
				mu.Unlock()
				continue
			}

			bid, ask, err := parseBookTicker(msg)
			if err != nil {
				log.Printf("⚠️ feed: dropping malformed tick: %v", err)
				continue
			}
			f.Sink.OnPriceUpdate(bid, ask)
		}
	}()

	return stop, nil
}

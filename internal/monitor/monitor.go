package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"trading-core/internal/events"
)

// Monitor watches the event bus for liquidations and forwards them to an AlertSink.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
}

// Start subscribes to EventPositionLiquidated and forwards each one to
// Sink until ctx is canceled. Safe to call once.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(events.EventPositionLiquidated, 64)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if err := m.Sink.Send(formatAlert(msg)); err != nil {
					log.Printf("⚠️ monitor: alert delivery failed: %v", err)
				}
			}
		}
	}()
}

func formatAlert(msg any) string {
	liq, ok := msg.(events.PositionLiquidated)
	if !ok {
		return fmt.Sprintf("[%s] liquidation event", time.Now().Format(time.RFC3339))
	}
	return fmt.Sprintf("[%s] liquidated user=%s position=%s", time.Now().Format(time.RFC3339), liq.UserID, liq.PositionID)
}

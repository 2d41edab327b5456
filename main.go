package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-core/internal/audit"
	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/feed"
	"trading-core/internal/monitor"
	"trading-core/pkg/config"
	"trading-core/pkg/db"
)

// logSink writes liquidation alerts to the process log. Swap in a
// webhook or chat sink in production.
type logSink struct{}

func (logSink) Send(message string) error {
	log.Printf("🚨 %s", message)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	cfg.ApplyMoneyConstants()
	log.Printf("🚀 trading core starting (seed=%v threshold=%v)", cfg.SeedBalance, cfg.LiquidationThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	eng := engine.NewSized(bus, metrics, cfg.WalletInboxSize, cfg.PositionInboxSize)
	go eng.Run(ctx)

	// Audit journal: optional, off the hot path. An empty path disables it.
	if cfg.AuditDBPath != "" {
		database, err := db.New(cfg.AuditDBPath)
		if err != nil {
			log.Fatalf("audit db init failed: %v", err)
		}
		defer database.Close()
		if err := audit.ApplyMigrations(database.DB); err != nil {
			log.Fatalf("audit migrations failed: %v", err)
		}
		journal := audit.New(database.DB, cfg.AuditBatchSize, time.Duration(cfg.AuditFlushIntervalMs)*time.Millisecond)
		defer journal.Close()
		journal.Subscribe(ctx, bus)
		log.Printf("📒 audit journal at %s", cfg.AuditDBPath)
	}

	// Liquidation alerts to the log.
	mon := &monitor.Monitor{Bus: bus, Sink: logSink{}}
	mon.Start(ctx)

	// Price tape: a live websocket stream when FEED_URL is set, a
	// synthetic random walk otherwise so the engine is exercisable
	// out of the box.
	if url := os.Getenv("FEED_URL"); url != "" {
		stop, err := feed.NewWSFeed(url, eng).Start(ctx)
		if err != nil {
			log.Fatalf("price feed dial failed: %v", err)
		}
		defer stop()
		log.Printf("📡 streaming prices from %s", url)
	} else {
		synth := &feed.Synthetic{Sink: eng, StartPrice: 64000, Step: 25, Spread: 0.5, TicksPerSec: 10}
		synth.Start(ctx)
		log.Println("📡 no FEED_URL set, using synthetic random-walk tape")
	}

	// Periodic throughput report.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := metrics.GetSnapshot()
				log.Printf("📊 ticks=%d opened=%d closed=%d liquidated=%d errors=%d open_p95=%.2fms",
					snap.TicksProcessed, snap.OrdersOpened, snap.OrdersClosed,
					snap.Liquidations, snap.ErrorsCount, snap.OpenLatency.P95)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("🛑 shutting down")
	cancel()
}

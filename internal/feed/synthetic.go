package feed

import (
	"context"
	"log"
	"math/rand"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Synthetic generates a random-walk tape for local development, demos,
// and load tests. Tick pacing goes through a rate.Limiter so a high
// configured rate still yields an evenly spaced tape instead of bursts.
type Synthetic struct {
	Sink        Sink
	StartPrice  float64
	Step        float64
	Spread      float64
	TicksPerSec float64
}

// Start walks the price until ctx is canceled. Runs in its own goroutine.
func (s *Synthetic) Start(ctx context.Context) {
	if s.Sink == nil {
		log.Println("synthetic feed: sink not set")
		return
	}
	price := s.StartPrice
	if price == 0 {
		price = 100.0
	}
	step := s.Step
	if step == 0 {
		step = 0.5
	}
	spread := s.Spread
	if spread == 0 {
		spread = 0.1
	}
	tps := s.TicksPerSec
	if tps == 0 {
		tps = 1
	}

	limiter := rate.NewLimiter(rate.Limit(tps), 1)

	go func() {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			// simple random walk, floored away from zero so the engine
			// never sees a dead tape
			price += (rand.Float64()*2 - 1) * step
			if price < step {
				price = step
			}
			bid := decimal.NewFromFloat(price)
			ask := bid.Add(decimal.NewFromFloat(spread))
			s.Sink.OnPriceUpdate(bid, ask)
		}
	}()
}

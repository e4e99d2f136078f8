package coordinator

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/models"
)

// Poller refreshes the registry from the gateway's place listing. A failed
// poll is logged and skipped; the previous universe stays in place.
type Poller struct {
	Gateway  gateway.Gateway
	Registry *Registry
	Interval time.Duration

	// OnChange is invoked after each poll that changed the universe, with the
	// targets whose state changed and the names of removed targets.
	OnChange func(changed []models.Target, removed []string)

	connected atomic.Bool
}

// Connected reports whether the last poll reached the coordinator.
func (p *Poller) Connected() bool {
	return p.connected.Load()
}

// Start runs the poll loop until the context is cancelled. The first poll
// happens immediately.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		p.pollOnce(ctx)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("Coordinator poller: context cancelled, stopping.")
				return
			case <-ticker.C:
				p.pollOnce(ctx)
			}
		}
	}()
}

func (p *Poller) pollOnce(ctx context.Context) {
	targets, err := p.Gateway.Places(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.connected.Store(false)
			log.Printf("Coordinator poller: failed to list places: %v", err)
		}
		return
	}
	p.connected.Store(true)

	changed, removed := p.Registry.Replace(targets)
	if len(changed) == 0 && len(removed) == 0 {
		return
	}
	log.Printf("Coordinator poller: %d target(s) changed, %d removed", len(changed), len(removed))
	if p.OnChange != nil {
		p.OnChange(changed, removed)
	}
}

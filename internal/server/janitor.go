package server

import (
	"context"
	"time"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// RunJanitor sweeps expired rooms on a fixed period until the context is
// canceled. Each sweep takes the same mutation lock as foreground
// operations, and a failing sweep never stops future ones.
func (g *Gateway) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(g.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.sweep(now)
		}
	}
}

// sweep evicts rooms past their age ceiling. Eviction is absolute: active
// rooms go too once old enough. Former members are told why before the
// room disappears under them.
func (g *Gateway) sweep(now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log.WithField("panic", rec).Error("janitor sweep panicked")
		}
	}()

	g.mu.Lock()
	evicted := g.engine.Sweep(now)
	var notices []outEvent
	for _, ev := range evicted {
		for _, id := range ev.Members {
			if conn, ok := g.conns[id]; ok {
				notices = append(notices, outEvent{conn, protocol.EventRoomError, "room expired"})
			}
		}
	}
	g.mu.Unlock()

	g.deliver(notices)

	for _, ev := range evicted {
		g.log.WithField("room", ev.Code).Info("evicted expired room")
	}
}

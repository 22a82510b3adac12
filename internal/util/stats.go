package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent   atomic.Int64 // frames written to the relay WebSocket
	FramesRecv   atomic.Int64 // frames read from the relay WebSocket
	FramesQueued atomic.Int64 // frames buffered because the WebSocket was not open yet
	FramesDrop   atomic.Int64 // inbound frames dropped as malformed or unknown
	Deliveries   atomic.Int64 // one-shot HTTP deliveries attempted
	DeliveryErrs atomic.Int64 // one-shot HTTP deliveries that failed
	MediaPkts    atomic.Int64 // RTP packets read from remote tracks
}

func (s *stats) AddSent()         { s.FramesSent.Add(1) }
func (s *stats) AddRecv()         { s.FramesRecv.Add(1) }
func (s *stats) AddQueued()       { s.FramesQueued.Add(1) }
func (s *stats) AddDropped()      { s.FramesDrop.Add(1) }
func (s *stats) AddDelivery()     { s.Deliveries.Add(1) }
func (s *stats) AddDeliveryFail() { s.DeliveryErrs.Add(1) }
func (s *stats) AddMediaPacket()  { s.MediaPkts.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval, skipping quiet periods. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur.sub(prev)))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	sent, recv, queued, dropped, deliveries, deliveryErrs, media int64
}

func takeSnapshot() snapshot {
	return snapshot{
		sent:         Stats.FramesSent.Load(),
		recv:         Stats.FramesRecv.Load(),
		queued:       Stats.FramesQueued.Load(),
		dropped:      Stats.FramesDrop.Load(),
		deliveries:   Stats.Deliveries.Load(),
		deliveryErrs: Stats.DeliveryErrs.Load(),
		media:        Stats.MediaPkts.Load(),
	}
}

func (s snapshot) sub(o snapshot) snapshot {
	return snapshot{
		sent:         s.sent - o.sent,
		recv:         s.recv - o.recv,
		queued:       s.queued - o.queued,
		dropped:      s.dropped - o.dropped,
		deliveries:   s.deliveries - o.deliveries,
		deliveryErrs: s.deliveryErrs - o.deliveryErrs,
		media:        s.media - o.media,
	}
}

// formatStats returns a one-line summary of a stats delta for the logger.
func formatStats(d snapshot) string {
	return fmt.Sprintf("WS: %3d↑ %3d↓ | Queued: %3d | Dropped: %3d | POST: %3d (%d failed) | RTP: %d",
		d.sent,
		d.recv,
		d.queued,
		d.dropped,
		d.deliveries,
		d.deliveryErrs,
		d.media,
	)
}

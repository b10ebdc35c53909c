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

// Stats is the process-wide negotiation counter.
var Stats = &stats{}

type stats struct {
	OffersSent        atomic.Int64 // local offers delivered to the relay
	AnswersSent       atomic.Int64 // local answers delivered to the relay
	OffersIgnored     atomic.Int64 // colliding remote offers dropped by an impolite session
	Rollbacks         atomic.Int64 // local offers rolled back by a polite session
	Replacements      atomic.Int64 // connections rebuilt because the engine cannot roll back
	CandidatesSent    atomic.Int64 // local ICE candidates forwarded (end marker included)
	CandidatesApplied atomic.Int64 // remote ICE candidates accepted by the engine
	ICERestarts       atomic.Int64 // restarts triggered by ICE failure
	Failures          atomic.Int64 // negotiation errors that were reported
}

func (s *stats) AddOffer()            { s.OffersSent.Add(1) }
func (s *stats) AddAnswer()           { s.AnswersSent.Add(1) }
func (s *stats) AddIgnoredOffer()     { s.OffersIgnored.Add(1) }
func (s *stats) AddRollback()         { s.Rollbacks.Add(1) }
func (s *stats) AddReplacement()      { s.Replacements.Add(1) }
func (s *stats) AddCandidateSent()    { s.CandidatesSent.Add(1) }
func (s *stats) AddCandidateApplied() { s.CandidatesApplied.Add(1) }
func (s *stats) AddICERestart()       { s.ICERestarts.Add(1) }
func (s *stats) AddFailure()          { s.Failures.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	OffersSent        int64
	AnswersSent       int64
	OffersIgnored     int64
	Rollbacks         int64
	Replacements      int64
	CandidatesSent    int64
	CandidatesApplied int64
	ICERestarts       int64
	Failures          int64
}

// Snapshot loads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		OffersSent:        s.OffersSent.Load(),
		AnswersSent:       s.AnswersSent.Load(),
		OffersIgnored:     s.OffersIgnored.Load(),
		Rollbacks:         s.Rollbacks.Load(),
		Replacements:      s.Replacements.Load(),
		CandidatesSent:    s.CandidatesSent.Load(),
		CandidatesApplied: s.CandidatesApplied.Load(),
		ICERestarts:       s.ICERestarts.Load(),
		Failures:          s.Failures.Load(),
	}
}

// Sub returns the per-counter difference s - prev.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		OffersSent:        s.OffersSent - prev.OffersSent,
		AnswersSent:       s.AnswersSent - prev.AnswersSent,
		OffersIgnored:     s.OffersIgnored - prev.OffersIgnored,
		Rollbacks:         s.Rollbacks - prev.Rollbacks,
		Replacements:      s.Replacements - prev.Replacements,
		CandidatesSent:    s.CandidatesSent - prev.CandidatesSent,
		CandidatesApplied: s.CandidatesApplied - prev.CandidatesApplied,
		ICERestarts:       s.ICERestarts - prev.ICERestarts,
		Failures:          s.Failures - prev.Failures,
	}
}

// IsZero reports whether no counter moved.
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs negotiation activity
// every interval. Quiet intervals are skipped. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if delta := cur.Sub(prev); !delta.IsZero() {
					pterm.DefaultLogger.Info(formatStats(delta))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a one-line summary of a counter delta for the logger.
func formatStats(d Snapshot) string {
	return fmt.Sprintf("SDP: %2d↑ offer %2d↑ answer | Collisions: %2d ignored %2d rolled back %2d replaced | ICE: %3d↑ %3d↓ %d restart | Errors: %d",
		d.OffersSent,
		d.AnswersSent,
		d.OffersIgnored,
		d.Rollbacks,
		d.Replacements,
		d.CandidatesSent,
		d.CandidatesApplied,
		d.ICERestarts,
		d.Failures,
	)
}

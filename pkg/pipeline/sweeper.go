package pipeline

import (
	"context"
	"log"
	"time"
)

// sweepGrace is how long a submission may sit without a decision record
// before the sweeper considers it stalled (crashed worker, lost goroutine).
const sweepGrace = 5 * time.Minute

const sweepBatch = 50

// Sweep re-runs the pipeline for stalled submissions. Returns how many were
// picked up. Safe to run concurrently with live processing: a submission that
// reached a decision in the meantime is a no-op.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-sweepGrace)
	subs, err := o.repo.StalledSubmissions(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	for _, sub := range subs {
		log.Printf("KYC sweep: reprocessing stalled submission %s", sub.SubmissionID)
		if _, err := o.Process(ctx, sub.SubmissionID); err != nil {
			log.Printf("KYC sweep: %s failed: %v", sub.SubmissionID, err)
		}
	}
	return len(subs), nil
}

// SweepLoop runs Sweep on the given interval until ctx is cancelled.
func (o *Orchestrator) SweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := o.Sweep(ctx); err != nil {
				log.Printf("KYC sweep error: %v", err)
			} else if n > 0 {
				log.Printf("KYC sweep: reprocessed %d submissions", n)
			}
		}
	}
}

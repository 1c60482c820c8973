package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/TeamPay/app/models"
)

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned    int `json:"scanned"`
	Due        int `json:"due"`
	Overdue    int `json:"overdue"`
	Superseded int `json:"superseded"`
	Failed     int `json:"failed"`
}

type rowOutcome int

const (
	outcomeUnchanged rowOutcome = iota
	outcomeDue
	outcomeOverdue
	outcomeSuperseded
	outcomeFailed
)

// Sweep advances memberships purely on elapsed time: active rows whose due
// date has passed become due, due rows past the grace period become overdue.
//
// The candidate set is snapshotted before any write, and each row is judged
// only on its snapshot status, so a row promoted to due in this pass is never
// also marked overdue by it. Running Sweep twice with the same now is a no-op
// the second time.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	snapshot, err := s.snapshotCandidates(ctx)
	if err != nil {
		return res, err
	}
	res.Scanned = len(snapshot)
	if len(snapshot) == 0 {
		return res, nil
	}

	overdueCutoff := now.AddDate(0, 0, -s.cfg.GraceDays)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range snapshot {
		row := snapshot[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome := s.sweepRow(gctx, row, now, overdueCutoff)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeDue:
				res.Due++
			case outcomeOverdue:
				res.Overdue++
			case outcomeSuperseded:
				res.Superseded++
			case outcomeFailed:
				res.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("sweep interrupted: %w", err)
	}

	if res.Due > 0 || res.Overdue > 0 || res.Failed > 0 {
		log.Infof("[Sweep] scanned=%d due=%d overdue=%d superseded=%d failed=%d",
			res.Scanned, res.Due, res.Overdue, res.Superseded, res.Failed)
	}
	return res, nil
}

func (s *Service) snapshotCandidates(ctx context.Context) ([]models.Membership, error) {
	var all []models.Membership
	var afterID uint
	for {
		batch, err := s.repo.ListSweepCandidates(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list sweep candidates: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < s.cfg.BatchSize {
			return all, nil
		}
		afterID = batch[len(batch)-1].ID
	}
}

// sweepRow applies at most one time-driven transition to a row. On a stale
// write it re-reads the row and only retries while the row still has the
// status it had in the snapshot; otherwise a concurrent writer has already
// moved it and the sweep leaves it alone.
func (s *Service) sweepRow(ctx context.Context, snap models.Membership, now, overdueCutoff time.Time) rowOutcome {
	row := snap
	for attempt := 0; ; attempt++ {
		target, ok := sweepTarget(row.Status, row.NextDueAt, now, overdueCutoff)
		if !ok {
			if attempt > 0 {
				return outcomeSuperseded
			}
			return outcomeUnchanged
		}

		err := s.repo.CompareAndSwap(ctx, row.ID, row.Status, row.Version, Update{Status: target})
		if err == nil {
			if target == models.MembershipStatusOverdue {
				return outcomeOverdue
			}
			return outcomeDue
		}
		if !errors.Is(err, ErrStaleWrite) {
			log.Errorf("[Sweep] Membership %d: %s -> %s failed: %v", row.ID, row.Status, target, err)
			return outcomeFailed
		}
		if attempt >= s.cfg.MaxStaleRetries {
			log.Warnf("[Sweep] Membership %d still contended after %d retries, leaving for next sweep", row.ID, attempt)
			return outcomeSuperseded
		}

		fresh, err := s.repo.GetMembership(ctx, row.ID)
		if err != nil {
			log.Errorf("[Sweep] Membership %d re-read failed: %v", row.ID, err)
			return outcomeFailed
		}
		if fresh.Status != snap.Status {
			return outcomeSuperseded
		}
		row = *fresh
	}
}

package services

import (
	"context"
	"errors"
	"time"

	"stablebatch/internal/clients/stable"
	"stablebatch/internal/jobs"
	"stablebatch/internal/store"
	"stablebatch/types"

	"github.com/charmbracelet/log"
)

// Poller asks the generation API for the current state of one job.
type Poller interface {
	Fetch(ctx context.Context, id, fetchURL string) (*jobs.Response, error)
}

// Reconciler polls every pending job and migrates the finished ones out of
// the pending queue.
type Reconciler struct {
	poller     Poller
	pending    *store.PendingQueue
	classifier *Classifier
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	log        *log.Logger
}

func NewReconciler(poller Poller, pending *store.PendingQueue, classifier *Classifier, delay time.Duration) *Reconciler {
	return &Reconciler{
		poller:     poller,
		pending:    pending,
		classifier: classifier,
		delay:      delay,
		sleep:      SleepWithContext,
		now:        time.Now,
		log:        log.With("component", "reconciler"),
	}
}

type outcome int

const (
	keep outcome = iota
	refresh
	remove
)

// Reconcile runs one pass. A failed poll only affects its own entry, which
// stays pending. The queue is rewritten once at the end; entries added by a
// concurrent batch while the pass ran are kept.
func (r *Reconciler) Reconcile(ctx context.Context) (types.ReconcileSummary, error) {
	var summary types.ReconcileSummary

	entries, err := r.pending.Load()
	if err != nil {
		return summary, err
	}
	if len(entries) == 0 {
		r.log.Info("nothing pending")
		return summary, nil
	}

	removed := map[jobs.FlexibleID]bool{}
	refreshed := map[jobs.FlexibleID]jobs.PendingEntry{}
	suspended := false

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		summary.Checked++

		if suspended {
			continue
		}

		out, resp, err := r.poll(ctx, entry, &summary)
		if errors.Is(err, stable.ErrPollsSuspended) {
			r.log.Warn("fetch endpoint failing, leaving remaining jobs pending", "id", entry.ID)
			suspended = true
			continue
		}

		switch out {
		case remove:
			removed[entry.ID] = true
		case refresh:
			refreshed[entry.ID] = entry.Refresh(resp, r.now())
		}

		if i < len(entries)-1 {
			if err := r.sleep(ctx, r.delay); err != nil {
				break
			}
		}
	}

	err = r.pending.Update(func(current []jobs.PendingEntry) []jobs.PendingEntry {
		next := make([]jobs.PendingEntry, 0, len(current))
		for _, e := range current {
			if removed[e.ID] {
				continue
			}
			if fresh, ok := refreshed[e.ID]; ok {
				e = fresh
			}
			next = append(next, e)
		}
		summary.Remaining = len(next)
		return next
	})
	if err != nil {
		return summary, err
	}

	r.log.Info("reconcile finished",
		"checked", summary.Checked,
		"completed", summary.Completed,
		"processing", summary.Processing,
		"dropped", summary.Dropped,
		"remaining", summary.Remaining,
	)
	return summary, ctx.Err()
}

func (r *Reconciler) poll(ctx context.Context, entry jobs.PendingEntry, summary *types.ReconcileSummary) (outcome, *jobs.Response, error) {
	id := entry.ID.String()

	resp, err := r.poller.Fetch(ctx, id, entry.FetchResult)
	if err != nil {
		if errors.Is(err, stable.ErrPollsSuspended) {
			return keep, nil, err
		}
		summary.Errored++
		r.log.Error("poll failed, keeping job pending", "id", id, "err", err)
		return keep, nil, nil
	}
	if resp == nil {
		summary.Undecoded++
		return keep, nil, nil
	}

	// fetch replies do not always echo the id
	if resp.ID == "" {
		resp.ID = entry.ID
	}

	state := resp.State()
	r.classifier.metrics.Responses.WithLabelValues("fetch", state.String()).Inc()

	switch state {
	case jobs.StatusSuccess:
		if len(resp.Output) == 0 {
			summary.Unknown++
			r.log.Warn("job reported success without output, keeping it pending", "id", id)
			return keep, nil, nil
		}
		if err := r.classifier.Complete(ctx, resp); err != nil {
			summary.Errored++
			r.log.Error("could not record finished job, keeping it pending", "id", id, "err", err)
			return keep, nil, nil
		}
		summary.Completed++
		r.log.Info("job finished", "id", id, "output", []string(resp.Output))
		return remove, resp, nil

	case jobs.StatusProcessing:
		summary.Processing++
		r.log.Info("job still processing", "id", id, "eta", float64(resp.ETA))
		return refresh, resp, nil

	case jobs.StatusError, jobs.StatusFailed:
		summary.Dropped++
		r.classifier.ReportFailure(resp)
		return remove, resp, nil

	default:
		summary.Unknown++
		r.log.Warn("unexpected job status, keeping it pending", "id", id, "status", resp.Status)
		return keep, nil, nil
	}
}

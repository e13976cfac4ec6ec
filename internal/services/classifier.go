package services

import (
	"context"
	"math"
	"time"

	"stablebatch/internal/jobs"
	"stablebatch/internal/metrics"
	"stablebatch/internal/store"
	"stablebatch/types"

	"github.com/charmbracelet/log"
)

// Classifier routes each job response to the completed log, the pending queue
// or an error report.
type Classifier struct {
	results *store.ResultLog
	pending *store.PendingQueue
	meta    *store.MetaStore
	images  ImageFetcher
	metrics *metrics.Metrics
	now     func() time.Time
	log     *log.Logger
}

func NewClassifier(results *store.ResultLog, pending *store.PendingQueue, meta *store.MetaStore, images ImageFetcher, m *metrics.Metrics) *Classifier {
	return &Classifier{
		results: results,
		pending: pending,
		meta:    meta,
		images:  images,
		metrics: m,
		now:     time.Now,
		log:     log.With("component", "classifier"),
	}
}

// Process handles one dispatch response. Errors are persistence failures only;
// remote job errors are reported and returned as their status.
func (c *Classifier) Process(ctx context.Context, resp *jobs.Response) (jobs.Status, error) {
	state := resp.State()
	c.metrics.Responses.WithLabelValues("dispatch", state.String()).Inc()
	id := resp.JobID()

	switch state {
	case jobs.StatusSuccess:
		c.log.Info("job finished", "id", id, "output", []string(resp.Output))
		return state, c.Complete(ctx, resp)

	case jobs.StatusProcessing:
		c.log.Info("job processing, run fetch later", "id", id, "eta", math.Round(float64(resp.ETA)*100)/100)
		return state, c.keepPending(resp)

	case jobs.StatusError, jobs.StatusFailed:
		c.ReportFailure(resp)
		return state, nil

	default:
		c.log.Warn("unexpected job status", "id", id, "status", resp.Status)
		return state, c.keepPending(resp)
	}
}

func (c *Classifier) keepPending(resp *jobs.Response) error {
	id := resp.JobID()
	if id == "" {
		c.log.Warn("response has no job id, nothing to track", "status", resp.Status)
		return nil
	}
	if err := c.meta.Write(id, resp.Fields); err != nil {
		return err
	}
	return c.pending.Upsert(jobs.NewPendingEntry(resp, c.now()))
}

// Complete records a successful job and downloads its images. Meta recorded at
// dispatch time wins over whatever the response carries, since fetch replies
// omit it. Partial download failures are logged, not returned.
func (c *Classifier) Complete(ctx context.Context, resp *jobs.Response) error {
	id := resp.JobID()

	if id != "" {
		stored, err := c.meta.Meta(id)
		if err != nil {
			c.log.Warn("stored meta unreadable", "id", id, "err", err)
		} else if stored != nil {
			resp.Meta = stored
		}
	}

	record := resp.Record(c.now())
	if id != "" {
		if err := c.meta.Write(id, record); err != nil {
			return err
		}
	}
	written, err := c.results.Append(id, record)
	if err != nil {
		return err
	}
	if !written {
		c.log.Debug("job already in results log", "id", id)
	}

	report := c.images.FetchAll(ctx, id, resp.Output)
	if !report.Complete() {
		c.log.Warn("some images failed to download, run sync to retry",
			"id", id, "failed", report.Failed, "downloaded", report.Downloaded)
	}
	return nil
}

func (c *Classifier) ReportFailure(resp *jobs.Response) {
	c.log.Error("job failed",
		"id", resp.JobID(),
		"status", resp.Status,
		"message", jobs.MessageText(resp.Message),
		"tips", jobs.MessageText(resp.Tips),
	)
}

// Resync downloads every output image of the completed log that is not on disk yet.
func (c *Classifier) Resync(ctx context.Context) (types.SyncSummary, error) {
	var summary types.SyncSummary

	entries, err := c.results.Entries()
	if err != nil {
		return summary, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		urls := outputURLs(e["output"])
		if len(urls) == 0 {
			continue
		}
		summary.Jobs++
		report := c.images.FetchAll(ctx, jobs.IDString(e["id"]), urls)
		summary.Downloaded += report.Downloaded
		summary.Skipped += report.Skipped
		summary.Failed += report.Failed
	}
	return summary, nil
}

func outputURLs(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"stablebatch/internal/jobs"
	"stablebatch/internal/options"
	"stablebatch/internal/uploads"
	"stablebatch/types"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Batch runs one option set end to end: resolve uploads, expand, dispatch
// every combo in order and classify each response.
type Batch struct {
	resolver   *uploads.Resolver
	dispatcher *Dispatcher
	classifier *Classifier
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        *log.Logger
}

func NewBatch(resolver *uploads.Resolver, dispatcher *Dispatcher, classifier *Classifier, delay time.Duration) *Batch {
	return &Batch{
		resolver:   resolver,
		dispatcher: dispatcher,
		classifier: classifier,
		delay:      delay,
		sleep:      SleepWithContext,
		log:        log.With("component", "batch"),
	}
}

func (b *Batch) RunFile(ctx context.Context, path string) (types.BatchSummary, error) {
	set, err := options.Load(path)
	if err != nil {
		return types.BatchSummary{}, err
	}
	return b.Run(ctx, set)
}

// Run stops at the first transport error, missing file or persistence
// failure. Everything classified before that point stays persisted.
func (b *Batch) Run(ctx context.Context, set options.OptionSet) (types.BatchSummary, error) {
	summary := types.BatchSummary{RunID: uuid.NewString()}
	logger := b.log.With("run", summary.RunID)

	if err := b.resolver.ResolveOption(ctx, &set, options.KeyInitImage); err != nil {
		return summary, err
	}
	if set.HasCall("inpaint") {
		if err := b.resolver.ResolveOption(ctx, &set, options.KeyMaskImage); err != nil {
			return summary, err
		}
	}

	combos := options.Expand(set)
	for _, combo := range combos {
		if combo.Call() == "" {
			return summary, fmt.Errorf("combo %d: %w", combo.Index, options.ErrNoCall)
		}
	}
	summary.Combos = len(combos)
	logger.Info("starting batch", "combos", len(combos))

	for _, combo := range combos {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		logger.Debug("rendering", "index", combo.Index, "call", combo.Call(), "params", combo.String())
		resp, err := b.dispatcher.Dispatch(ctx, combo)
		if err != nil {
			return summary, fmt.Errorf("combo %d: %w", combo.Index, err)
		}

		if resp == nil {
			summary.Undecoded++
			logger.Warn("no usable response, skipping combo", "index", combo.Index)
		} else {
			state, err := b.classifier.Process(ctx, resp)
			if err != nil {
				return summary, fmt.Errorf("combo %d: %w", combo.Index, err)
			}
			switch state {
			case jobs.StatusSuccess:
				summary.Success++
			case jobs.StatusProcessing:
				summary.Processing++
			case jobs.StatusError, jobs.StatusFailed:
				summary.Failed++
			default:
				summary.Unknown++
			}
		}

		if err := b.sleep(ctx, b.delay); err != nil {
			return summary, err
		}
	}

	logger.Info("batch finished",
		"success", summary.Success,
		"processing", summary.Processing,
		"failed", summary.Failed,
		"unknown", summary.Unknown,
		"undecoded", summary.Undecoded,
	)
	return summary, nil
}

// SleepWithContext blocks for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

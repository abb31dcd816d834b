// Package enrich assigns labels to harvested items that do not have one.
//
// The pass is sequential: each unlabeled item's artifact is read, a short
// excerpt is sent to the classifier, and the returned label is kept in memory.
// Consecutive classifier calls are separated by at least Config.Pace, measured
// from the end of one call to the start of the next. All labels are written
// back with a single RewriteAll at the end of the pass.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

const defaultExcerptChars = 1000

// Config controls pacing and prompt size.
type Config struct {
	Pace         time.Duration
	ExcerptChars int
}

// Summary reports what one pass did.
type Summary struct {
	Pending    int
	Classified int
	Unknown    int
	Remaining  int
	Duration   time.Duration
}

// Worker runs enrichment passes over a store.
type Worker struct {
	store      harvest.Store
	extractor  harvest.TextExtractor
	classifier harvest.Classifier
	labels     harvest.LabelSet
	cfg        Config
	logger     *zap.Logger

	// lastCall is when the previous classifier call returned in this pass.
	lastCall time.Time
}

// New builds a Worker.
func New(
	store harvest.Store,
	extractor harvest.TextExtractor,
	classifier harvest.Classifier,
	labels harvest.LabelSet,
	cfg Config,
	logger *zap.Logger,
) (*Worker, error) {
	if store == nil || extractor == nil || classifier == nil {
		return nil, fmt.Errorf("store, extractor and classifier are required")
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = defaultExcerptChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		labels:     labels,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run labels every item that has no label yet. If ctx is canceled mid-pass,
// labels gathered so far are still persisted and the cancellation is returned.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	items, err := w.store.ReadAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("read items: %w", err)
	}
	for _, item := range items {
		if !item.Labeled() {
			summary.Pending++
		}
	}
	if summary.Pending == 0 {
		w.logger.Info("no items pending enrichment", zap.Int("items", len(items)))
		return summary, nil
	}
	w.logger.Info("enrichment started", zap.Int("pending", summary.Pending))

	w.lastCall = time.Time{}
	changed := 0
	var runErr error
	for i := range items {
		if items[i].Labeled() {
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("enrichment interrupted: %w", err)
			break
		}
		label, err := w.labelFor(ctx, items[i])
		if err != nil {
			runErr = fmt.Errorf("enrichment interrupted: %w", err)
			break
		}
		items[i].Label = label
		changed++
		metrics.ObserveLabel(string(label))
		if label == harvest.LabelUnknown {
			summary.Unknown++
		} else {
			summary.Classified++
		}
	}
	summary.Remaining = summary.Pending - changed

	if changed > 0 {
		if err := w.store.RewriteAll(context.WithoutCancel(ctx), items); err != nil {
			return summary, fmt.Errorf("persist labels: %w", err)
		}
	}
	summary.Duration = time.Since(start)
	w.logger.Info("enrichment finished",
		zap.Int("classified", summary.Classified),
		zap.Int("unknown", summary.Unknown),
		zap.Int("remaining", summary.Remaining),
		zap.Duration("duration", summary.Duration),
	)
	return summary, runErr
}

// labelFor returns the label for one item. An error means the pass was
// canceled and the item should stay unlabeled.
func (w *Worker) labelFor(ctx context.Context, item harvest.Item) (harvest.Label, error) {
	logger := w.logger.With(zap.String("artifact_url", item.ArtifactURL), zap.String("path", item.ArtifactPath))

	text, err := w.extractor.Extract(ctx, item.ArtifactPath)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", err
	case errors.Is(err, harvest.ErrIntegrity):
		logger.Info("artifact missing or empty", zap.Error(err))
		return harvest.LabelUnknown, nil
	case err != nil:
		logger.Warn("text extraction failed", zap.Error(err))
		return harvest.LabelUnknown, nil
	case text == "":
		logger.Info("artifact has no extractable text")
		return harvest.LabelUnknown, nil
	}

	if err := w.pace(ctx); err != nil {
		return "", fmt.Errorf("pace classifier: %w", err)
	}
	label := w.classifier.Classify(ctx, BuildPrompt(w.labels, text, w.cfg.ExcerptChars))
	w.lastCall = time.Now()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !w.labels.Contains(label) {
		logger.Warn("classifier returned a label outside the set", zap.String("label", string(label)))
		label = harvest.LabelUnknown
	}
	logger.Info("item labeled", zap.String("label", string(label)))
	return label, nil
}

// pace blocks until Pace has elapsed since the previous classifier call
// returned. Retries and backoff inside a call do not count toward the gap.
func (w *Worker) pace(ctx context.Context) error {
	if w.cfg.Pace <= 0 || w.lastCall.IsZero() {
		return nil
	}
	wait := w.cfg.Pace - time.Since(w.lastCall)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

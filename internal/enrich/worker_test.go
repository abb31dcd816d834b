package enrich

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/store/memory"
)

type fakeExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	if err, ok := f.errs[path]; ok {
		return "", err
	}
	return f.texts[path], nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	label   harvest.Label
	prompts []string
	calls   []time.Time
}

func (f *fakeClassifier) Classify(_ context.Context, prompt string) harvest.Label {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.calls = append(f.calls, time.Now())
	f.mu.Unlock()
	return f.label
}

type countingStore struct {
	*memory.Store
	rewrites int
}

func (s *countingStore) RewriteAll(ctx context.Context, items []harvest.Item) error {
	s.rewrites++
	return s.Store.RewriteAll(ctx, items)
}

func newWorker(t *testing.T, store harvest.Store, ex harvest.TextExtractor, cl harvest.Classifier, pace time.Duration) *Worker {
	t.Helper()
	w, err := New(store, ex, cl, harvest.NewLabelSet(harvest.DefaultLabels), Config{Pace: pace}, zap.NewNop())
	require.NoError(t, err)
	return w
}

func TestRunLabelsPendingItems(t *testing.T) {
	t.Parallel()

	store := &countingStore{Store: memory.New(
		harvest.Item{ArtifactURL: "done", ArtifactPath: "/p/done.pdf", Label: "Optimization"},
		harvest.Item{ArtifactURL: "ok", ArtifactPath: "/p/ok.pdf"},
		harvest.Item{ArtifactURL: "missing", ArtifactPath: "/p/missing.pdf"},
		harvest.Item{ArtifactURL: "failed-download", ArtifactPath: ""},
		harvest.Item{ArtifactURL: "blank", ArtifactPath: "/p/blank.pdf"},
		harvest.Item{ArtifactURL: "corrupt", ArtifactPath: "/p/corrupt.pdf"},
	)}
	extractor := &fakeExtractor{
		texts: map[string]string{"/p/ok.pdf": "We study policy gradients.", "/p/blank.pdf": ""},
		errs: map[string]error{
			"/p/missing.pdf": harvest.ErrIntegrity,
			"":               harvest.ErrIntegrity,
			"/p/corrupt.pdf": harvest.ErrParse,
		},
	}
	classifier := &fakeClassifier{label: "Reinforcement Learning"}

	summary, err := newWorker(t, store, extractor, classifier, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Pending)
	assert.Equal(t, 1, summary.Classified)
	assert.Equal(t, 4, summary.Unknown)
	assert.Zero(t, summary.Remaining)
	assert.Equal(t, 1, store.rewrites)
	assert.Len(t, classifier.prompts, 1)

	items, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	got := map[string]harvest.Label{}
	for _, item := range items {
		got[item.ArtifactURL] = item.Label
	}
	assert.Equal(t, map[string]harvest.Label{
		"done":            "Optimization",
		"ok":              "Reinforcement Learning",
		"missing":         harvest.LabelUnknown,
		"failed-download": harvest.LabelUnknown,
		"blank":           harvest.LabelUnknown,
		"corrupt":         harvest.LabelUnknown,
	}, got)
}

func TestRunWithNothingPendingDoesNotRewrite(t *testing.T) {
	t.Parallel()

	store := &countingStore{Store: memory.New(harvest.Item{ArtifactURL: "a", Label: harvest.LabelUnknown})}
	summary, err := newWorker(t, store, &fakeExtractor{}, &fakeClassifier{}, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Pending)
	assert.Zero(t, store.rewrites)
}

func TestRunSecondPassIsNoop(t *testing.T) {
	t.Parallel()

	store := &countingStore{Store: memory.New(harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"})}
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "vision transformers"}}
	classifier := &fakeClassifier{label: "Computer Vision"}
	w := newWorker(t, store, extractor, classifier, 0)

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	classifier.label = "Optimization"
	_, err = w.Run(context.Background())
	require.NoError(t, err)

	items, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.Label("Computer Vision"), items[0].Label, "labels are never overwritten")
	assert.Len(t, classifier.prompts, 1)
}

func TestRunPacesClassifierCalls(t *testing.T) {
	t.Parallel()

	store := memory.New(
		harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"},
		harvest.Item{ArtifactURL: "b", ArtifactPath: "/b.pdf"},
		harvest.Item{ArtifactURL: "c", ArtifactPath: "/c.pdf"},
	)
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "x", "/b.pdf": "y", "/c.pdf": "z"}}
	classifier := &fakeClassifier{label: "Optimization"}

	pace := 40 * time.Millisecond
	_, err := newWorker(t, store, extractor, classifier, pace).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, classifier.calls, 3)
	for i := 1; i < len(classifier.calls); i++ {
		gap := classifier.calls[i].Sub(classifier.calls[i-1])
		assert.GreaterOrEqual(t, gap, pace-5*time.Millisecond)
	}
}

// slowClassifier takes delay per call and records when each call started and
// finished.
type slowClassifier struct {
	delay  time.Duration
	starts []time.Time
	ends   []time.Time
}

func (s *slowClassifier) Classify(context.Context, string) harvest.Label {
	s.starts = append(s.starts, time.Now())
	time.Sleep(s.delay)
	s.ends = append(s.ends, time.Now())
	return "Optimization"
}

func TestRunWaitsPaceAfterSlowCalls(t *testing.T) {
	t.Parallel()

	store := memory.New(
		harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"},
		harvest.Item{ArtifactURL: "b", ArtifactPath: "/b.pdf"},
		harvest.Item{ArtifactURL: "c", ArtifactPath: "/c.pdf"},
	)
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "x", "/b.pdf": "y", "/c.pdf": "z"}}
	classifier := &slowClassifier{delay: 60 * time.Millisecond}

	pace := 40 * time.Millisecond
	_, err := newWorker(t, store, extractor, classifier, pace).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, classifier.starts, 3)
	for i := 1; i < len(classifier.starts); i++ {
		gap := classifier.starts[i].Sub(classifier.ends[i-1])
		assert.GreaterOrEqual(t, gap, pace, "call %d started %v after the previous one finished", i, gap)
	}
}

func TestRunPaceHonorsCancel(t *testing.T) {
	t.Parallel()

	store := &countingStore{Store: memory.New(
		harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"},
		harvest.Item{ArtifactURL: "b", ArtifactPath: "/b.pdf"},
	)}
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "x", "/b.pdf": "y"}}
	classifier := &fakeClassifier{label: "Optimization"}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	summary, err := newWorker(t, store, extractor, classifier, time.Hour).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, summary.Classified)
	assert.Equal(t, 1, summary.Remaining)
	assert.Equal(t, 1, store.rewrites)
	assert.Len(t, classifier.prompts, 1)
}

func TestRunStoresOnlyLabelsFromTheSet(t *testing.T) {
	t.Parallel()

	store := memory.New(harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"})
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "x"}}
	classifier := &fakeClassifier{label: "Astrology"}

	summary, err := newWorker(t, store, extractor, classifier, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unknown)

	items, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.LabelUnknown, items[0].Label)
}

func TestRunTruncatesExcerpt(t *testing.T) {
	t.Parallel()

	store := memory.New(harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"})
	long := strings.Repeat("é", 1500)
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": long}}
	classifier := &fakeClassifier{label: "Theoretical ML"}

	_, err := newWorker(t, store, extractor, classifier, 0).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, classifier.prompts, 1)
	assert.True(t, strings.HasSuffix(classifier.prompts[0], "Text:\n"+strings.Repeat("é", 1000)))
}

func TestRunPersistsProgressOnCancel(t *testing.T) {
	t.Parallel()

	store := &countingStore{Store: memory.New(
		harvest.Item{ArtifactURL: "a", ArtifactPath: "/a.pdf"},
		harvest.Item{ArtifactURL: "b", ArtifactPath: "/b.pdf"},
	)}
	extractor := &fakeExtractor{texts: map[string]string{"/a.pdf": "x", "/b.pdf": "y"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := &cancelOnSecond{label: "Optimization", cancel: cancel}
	summary, err := newWorker(t, store, extractor, classifier, 0).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.rewrites)
	assert.Equal(t, 1, summary.Classified)
	assert.Equal(t, 1, summary.Remaining)

	items, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.Label("Optimization"), items[0].Label)
	assert.False(t, items[1].Labeled(), "interrupted items stay pending")
}

// cancelOnSecond cancels the pass while the second classification is in flight.
type cancelOnSecond struct {
	label  harvest.Label
	cancel context.CancelFunc
	calls  int
}

func (c *cancelOnSecond) Classify(context.Context, string) harvest.Label {
	c.calls++
	if c.calls > 1 {
		c.cancel()
		return harvest.LabelUnknown
	}
	return c.label
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, harvest.LabelSet{}, Config{}, nil)
	require.Error(t, err)
}

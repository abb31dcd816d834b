package harvest

import (
	"context"
	"time"
)

// Store is the canonical collection of harvested items.
// Append must be safe for concurrent callers; RewriteAll is not expected to
// run concurrently with Append.
type Store interface {
	ReadAll(ctx context.Context) ([]Item, error)
	Append(ctx context.Context, item Item) error
	RewriteAll(ctx context.Context, items []Item) error
}

// ItemReader is the read side of Store.
type ItemReader interface {
	ReadAll(ctx context.Context) ([]Item, error)
}

// PageFetcher retrieves HTML pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// TextExtractor pulls plain text from a stored artifact.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Classifier maps a prompt onto a label. It never fails; LabelUnknown covers
// every error path.
type Classifier interface {
	Classify(ctx context.Context, prompt string) Label
}

// Publisher emits notifications about harvested items.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

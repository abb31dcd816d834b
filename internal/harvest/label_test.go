package harvest

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSetParse(t *testing.T) {
	t.Parallel()

	set := NewLabelSet(DefaultLabels)
	testCases := []struct {
		name  string
		reply string
		want  Label
	}{
		{"exact", "Computer Vision", "Computer Vision"},
		{"case and whitespace", "  computer vision\n", "Computer Vision"},
		{"trailing period", "Optimization.", "Optimization"},
		{"quoted", "\"Theoretical ML\"", "Theoretical ML"},
		{"out of set", "Robotics", LabelUnknown},
		{"sentence", "The label is Computer Vision", LabelUnknown},
		{"empty", "   ", LabelUnknown},
		{"unknown passthrough", "Unknown", LabelUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, set.Parse(tc.reply))
		})
	}
}

func TestLabelSetContainsAndNames(t *testing.T) {
	t.Parallel()

	set := NewLabelSet([]string{"A", " ", "a", "B"})
	assert.Equal(t, []string{"A", "B"}, set.Names())
	assert.True(t, set.Contains("A"))
	assert.True(t, set.Contains(LabelUnknown))
	assert.False(t, set.Contains("a"))
	assert.False(t, set.Contains("C"))
}

func TestItemJSONOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Item{SourceURL: "s", ArtifactURL: "a", Year: 2024})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "label")
	assert.NotContains(t, fields, "authors")
	assert.NotContains(t, fields, "title")
	assert.Contains(t, fields, "artifactPath")

	var legacy Item
	require.NoError(t, json.Unmarshal([]byte(`{"sourceUrl":"s","artifactUrl":"a","year":2023,"artifactPath":"p"}`), &legacy))
	assert.False(t, legacy.Labeled())
	assert.True(t, legacy.Downloaded())
}

func TestStatusErrorClassification(t *testing.T) {
	t.Parallel()

	limited := &StatusError{URL: "u", StatusCode: http.StatusTooManyRequests}
	assert.True(t, errors.Is(limited, ErrRateLimited))
	assert.False(t, errors.Is(limited, ErrTransient))

	failed := &StatusError{URL: "u", StatusCode: http.StatusInternalServerError}
	assert.True(t, errors.Is(failed, ErrTransient))
	assert.Contains(t, failed.Error(), "500")
}

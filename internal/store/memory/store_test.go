package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New(harvest.Item{ArtifactURL: "seed"})
	require.NoError(t, store.Append(ctx, harvest.Item{ArtifactURL: "next"}))

	items, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	items[0].Label = "Optimization"

	again, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.False(t, again[0].Labeled())

	require.NoError(t, store.RewriteAll(ctx, items))
	again, err = store.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, harvest.Label("Optimization"), again[0].Label)
}

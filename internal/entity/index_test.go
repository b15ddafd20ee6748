package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestIndex_PutGet(t *testing.T) {
	ctx := context.Background()
	ix := openTestIndex(t)

	require.NoError(t, ix.Put(ctx, Entity{Code: "mk101", ParkCode: "mk", Name: "Space Mountain"}))

	e, err := ix.Get(ctx, "MK101")
	require.NoError(t, err)
	assert.Equal(t, Entity{Code: "MK101", ParkCode: "MK", Name: "Space Mountain"}, e)

	require.NoError(t, ix.Put(ctx, Entity{Code: "MK101", ParkCode: "MK", Name: "Space Mountain (refurb)"}))
	e, err = ix.Get(ctx, "MK101")
	require.NoError(t, err)
	assert.Equal(t, "Space Mountain (refurb)", e.Name)

	_, err = ix.Get(ctx, "MK999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_Scan(t *testing.T) {
	ctx := context.Background()
	ix := openTestIndex(t)

	for _, e := range []Entity{
		{Code: "MK102", ParkCode: "MK"},
		{Code: "EP01", ParkCode: "EP"},
		{Code: "MK101", ParkCode: "MK"},
	} {
		require.NoError(t, ix.Put(ctx, e))
	}

	var codes []string
	require.NoError(t, ix.Scan(ctx, "MK", func(e Entity) error {
		codes = append(codes, e.Code)
		return nil
	}))
	assert.Equal(t, []string{"MK101", "MK102"}, codes)

	codes = nil
	require.NoError(t, ix.Scan(ctx, "", func(e Entity) error {
		codes = append(codes, e.Code)
		return nil
	}))
	assert.Len(t, codes, 3)
}

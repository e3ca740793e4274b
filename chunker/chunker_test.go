package chunker

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/convergence-vcs/convergence/objstore"
	"github.com/convergence-vcs/convergence/storagedriver/inmemory"
)

func newStore() *objstore.Store {
	return objstore.New(inmemory.New(), "repo-1/objects")
}

func TestIngestSmallFileStoresSingleBlob(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	content := []byte("a small file well under the threshold")
	ref, err := Ingest(ctx, bytes.NewReader(content), store, Config{ChunkSize: 16, Threshold: 1024})
	require.NoError(t, err)
	require.Equal(t, RefBlob, ref.Kind)
	require.EqualValues(t, len(content), ref.Size)

	got, err := MaterializeBytes(ctx, store, ref)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestIngestEmptyFile(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	ref, err := Ingest(ctx, bytes.NewReader(nil), store, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, RefBlob, ref.Kind)
	require.EqualValues(t, 0, ref.Size)
}

func TestIngestLargeFileProducesRecipe(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	content := bytes.Repeat([]byte{'x'}, 100)
	cfg := Config{ChunkSize: 8, Threshold: 16}

	ref, err := Ingest(ctx, bytes.NewReader(content), store, cfg)
	require.NoError(t, err)
	require.Equal(t, RefRecipe, ref.Kind)
	require.EqualValues(t, len(content), ref.Size)

	raw, err := store.Get(ctx, objstore.KindRecipe, ref.RecipeID)
	require.NoError(t, err)
	recipe, err := DecodeRecipe(raw)
	require.NoError(t, err)
	require.Len(t, recipe.Chunks, 13) // 12 full 8-byte chunks + one 4-byte tail

	got, err := MaterializeBytes(ctx, store, ref)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestIngestIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	content := bytes.Repeat([]byte{'y'}, 50)
	cfg := Config{ChunkSize: 8, Threshold: 16}

	ref1, err := Ingest(ctx, bytes.NewReader(content), store, cfg)
	require.NoError(t, err)
	ref2, err := Ingest(ctx, bytes.NewReader(content), store, cfg)
	require.NoError(t, err)

	require.Equal(t, ref1.RecipeID, ref2.RecipeID, "identical bytes must yield identical recipes")
}

func TestIngestOnlyTouchedChunkChanges(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := Config{ChunkSize: 8, Threshold: 16}

	original := bytes.Repeat([]byte{'a'}, 32)
	edited := append([]byte(nil), original...)
	edited[20] = 'Z' // falls inside the third chunk (bytes 16-23)

	refA, err := Ingest(ctx, bytes.NewReader(original), store, cfg)
	require.NoError(t, err)
	refB, err := Ingest(ctx, bytes.NewReader(edited), store, cfg)
	require.NoError(t, err)

	rawA, err := store.Get(ctx, objstore.KindRecipe, refA.RecipeID)
	require.NoError(t, err)
	recipeA, err := DecodeRecipe(rawA)
	require.NoError(t, err)

	rawB, err := store.Get(ctx, objstore.KindRecipe, refB.RecipeID)
	require.NoError(t, err)
	recipeB, err := DecodeRecipe(rawB)
	require.NoError(t, err)

	require.Len(t, recipeA.Chunks, len(recipeB.Chunks))
	changed := 0
	for i := range recipeA.Chunks {
		if recipeA.Chunks[i].ChunkID != recipeB.Chunks[i].ChunkID {
			changed++
		}
	}
	require.Equal(t, 1, changed, "editing one byte must only change the chunk containing it")
}

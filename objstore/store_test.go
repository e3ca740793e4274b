package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/convergence-vcs/convergence/convergeid"
	"github.com/convergence-vcs/convergence/convergerr"
	"github.com/convergence-vcs/convergence/storagedriver/inmemory"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	content := []byte("hello, converge")
	id := convergeid.Of(content)

	require.NoError(t, store.Put(ctx, KindBlob, id, content))

	got, err := store.Get(ctx, KindBlob, id)
	require.NoError(t, err)
	require.Equal(t, content, got)

	has, err := store.Has(ctx, KindBlob, id)
	require.NoError(t, err)
	require.True(t, has)
}

func TestPutRejectsMismatchedID(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	wrongID := convergeid.Of([]byte("not the content"))
	err := store.Put(ctx, KindBlob, wrongID, []byte("actual content"))
	require.Error(t, err)

	cerr, ok := err.(*convergerr.Error)
	require.True(t, ok, "expected *convergerr.Error, got %T", err)
	require.Equal(t, convergerr.CodeIntegrityMismatch, cerr.Code)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	content := []byte("same bytes twice")
	id := convergeid.Of(content)

	require.NoError(t, store.Put(ctx, KindBlob, id, content))
	require.NoError(t, store.Put(ctx, KindBlob, id, content))
}

func TestGetMissingReturnsCodeMissingObject(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	_, err := store.Get(ctx, KindBlob, convergeid.Of([]byte("never written")))
	require.Error(t, err)
	cerr, ok := err.(*convergerr.Error)
	require.True(t, ok)
	require.Equal(t, convergerr.CodeMissingObject, cerr.Code)
}

func TestMissingFiltersToAbsentIDs(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	present := []byte("present")
	presentID := convergeid.Of(present)
	require.NoError(t, store.Put(ctx, KindBlob, presentID, present))

	absentID := convergeid.Of([]byte("absent"))

	missing, err := store.Missing(ctx, KindBlob, []convergeid.ID{presentID, absentID})
	require.NoError(t, err)
	require.Equal(t, []convergeid.ID{absentID}, missing)
}

func TestListEnumeratesAcrossShards(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	var want []convergeid.ID
	for i := 0; i < 8; i++ {
		content := []byte{byte(i), byte(i + 1), byte(i + 2)}
		id := convergeid.Of(content)
		require.NoError(t, store.Put(ctx, KindBlob, id, content))
		want = append(want, id)
	}

	got, err := store.List(ctx, KindBlob)
	require.NoError(t, err)
	require.ElementsMatch(t, want, got)
}

func TestDeleteRemovesObject(t *testing.T) {
	ctx := context.Background()
	store := New(inmemory.New(), "repo-1/objects")

	content := []byte("to be deleted")
	id := convergeid.Of(content)
	require.NoError(t, store.Put(ctx, KindBlob, id, content))

	require.NoError(t, store.Delete(ctx, KindBlob, id))

	has, err := store.Has(ctx, KindBlob, id)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, store.Delete(ctx, KindBlob, id), "deleting an absent object is a no-op")
}

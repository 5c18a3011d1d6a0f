package semantic

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDBCounter atomic.Int64

func newTestStore(t *testing.T) *Store {
	t.Helper()
	id := testDBCounter.Add(1)
	s, err := OpenStore(fmt.Sprintf("file:semtest_%d?mode=memory&cache=shared", id))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	require.Nil(t, m, "no metadata on a fresh store")

	now := time.Now().Truncate(time.Second).UTC()
	require.NoError(t, s.SaveMetadata(ctx, Metadata{
		Fingerprint: "fp1", ModelID: "lexical", TotalTools: 3, IndexedTools: 3, CompletedAt: &now,
	}))

	loaded, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "fp1", loaded.Fingerprint)
	require.Equal(t, 3, loaded.IndexedTools)
	require.NotNil(t, loaded.CompletedAt)
	require.WithinDuration(t, now, *loaded.CompletedAt, time.Second)
}

func TestStore_MetadataUpsertOverwrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, Metadata{Fingerprint: "fp1", ModelID: "lexical", TotalTools: 1, IndexedTools: 0}))
	require.NoError(t, s.SaveMetadata(ctx, Metadata{Fingerprint: "fp2", ModelID: "lexical", TotalTools: 5, IndexedTools: 5}))

	loaded, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, "fp2", loaded.Fingerprint)
	require.Equal(t, 5, loaded.IndexedTools)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.1, -0.2, 0.3, 0.0}
	require.NoError(t, s.Upsert(ctx, Record{
		QualifiedName: "github:create_issue", Vector: vec,
		DescriptionHash: "dh1", SchemaHash: "sh1", ModelID: "lexical",
	}))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "github:create_issue")
	require.InDeltaSlice(t, vec, all["github:create_issue"].Vector, 1e-6)
}

func TestStore_UpsertOverwritesExisting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{QualifiedName: "a:b", Vector: []float32{1}, DescriptionHash: "old"}))
	require.NoError(t, s.Upsert(ctx, Record{QualifiedName: "a:b", Vector: []float32{2}, DescriptionHash: "new"}))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "new", all["a:b"].DescriptionHash)
}

func TestStore_DeleteMissing_PrunesStaleRecords(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{QualifiedName: "a:keep", Vector: []float32{1}}))
	require.NoError(t, s.Upsert(ctx, Record{QualifiedName: "a:drop", Vector: []float32{2}}))

	require.NoError(t, s.DeleteMissing(ctx, map[string]bool{"a:keep": true}))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "a:keep")
	require.NotContains(t, all, "a:drop")
}

func TestHashContent_StableAndSensitive(t *testing.T) {
	t.Parallel()
	h1 := HashContent("echo text", []byte(`{"type":"object"}`))
	h2 := HashContent("echo text", []byte(`{"type":"object"}`))
	h3 := HashContent("echo text", []byte(`{"type":"string"}`))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

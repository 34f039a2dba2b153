package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SyncMode: SyncImmediate})
	require.NoError(t, err)
	defer w.Close()

	seq1, err := w.Append(OpAddNoun, EntityNoun, "n1", map[string]any{"a": 1})
	require.NoError(t, err)
	seq2, err := w.Append(OpAddVerb, EntityVerb, "v1", map[string]any{"b": 2})
	require.NoError(t, err)
	require.Less(t, seq1, seq2)

	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Verify())
	require.True(t, entries[1].Verify())
	require.Equal(t, "n1", entries[0].EntityID)
}

func TestCheckpointTruncates(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SyncMode: SyncImmediate})
	require.NoError(t, err)
	defer w.Close()

	seq1, _ := w.Append(OpAddNoun, EntityNoun, "n1", nil)
	_, _ = w.Append(OpAddNoun, EntityNoun, "n2", nil)

	require.NoError(t, w.Checkpoint(seq1))

	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "n2", entries[0].EntityID)
}

func TestDisabledIsNoop(t *testing.T) {
	w, err := Open(Config{Disabled: true})
	require.NoError(t, err)
	seq, err := w.Append(OpAddNoun, EntityNoun, "n1", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq)
	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Nil(t, entries)
	require.NoError(t, w.Close())
}

func TestReopenRecoversSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SyncMode: SyncImmediate})
	require.NoError(t, err)
	_, _ = w.Append(OpAddNoun, EntityNoun, "n1", nil)
	_, _ = w.Append(OpAddNoun, EntityNoun, "n2", nil)
	require.NoError(t, w.Close())

	w2, err := Open(Config{Dir: dir, SyncMode: SyncImmediate})
	require.NoError(t, err)
	defer w2.Close()
	require.Equal(t, uint64(2), w2.Sequence())
}

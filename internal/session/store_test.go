package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrationsApplyOnceAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, New("Album", "Album")))
	require.NoError(t, store.Close())

	// Reopening must see every migration as applied and keep the data.
	store, err = Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var versions int
	row := store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations")
	require.NoError(t, row.Scan(&versions))
	assert.Equal(t, 1, versions)

	loaded, err := store.Get(ctx, "Album")
	require.NoError(t, err)
	assert.Equal(t, StepListing, loaded.Step)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess := New("music/Artist - Album", "Artist - Album")
	require.NoError(t, sess.Transition(StepMultiMatch))
	sess.SetCandidates([]beets.Candidate{
		{Source: beets.SourceMusicBrainz, ReleaseID: "1b2c", Info: "Artist - Album", Similarity: 0.968},
		{Source: beets.SourceDiscogs, ReleaseID: "12345", Info: "Artist - Album (Deluxe)", Similarity: 0.8},
	})
	require.NoError(t, sess.Select(0))
	require.NoError(t, sess.AwaitInput(PendingDiscogsID))
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, sess.TargetID)
	require.NoError(t, err)
	assert.Equal(t, sess.TargetID, loaded.TargetID)
	assert.Equal(t, sess.Name, loaded.Name)
	assert.Equal(t, sess.Step, loaded.Step)
	assert.Equal(t, sess.Pending, loaded.Pending)
	assert.Equal(t, sess.Revision, loaded.Revision)
	assert.Equal(t, sess.SelectedIndex, loaded.SelectedIndex)
	assert.Equal(t, sess.Candidates, loaded.Candidates)
	assert.True(t, sess.CreatedAt.Equal(loaded.CreatedAt))
	assert.True(t, sess.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestStoreSaveIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess := New("t", "t")
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, sess.Transition(StepNoMatch))
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, StepNoMatch, loaded.Step)
	assert.Equal(t, sess.Revision, loaded.Revision)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreActiveExcludesTerminal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	live := New("live", "live")
	require.NoError(t, store.Save(ctx, live))

	done := New("done", "done")
	done.Step = StepCompleted
	require.NoError(t, store.Save(ctx, done))

	active, err := store.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].TargetID)
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("t", "t")))
	existed, err := store.Delete(ctx, "t")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, "t")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStoreClearTerminal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, step := range []Step{StepCompleted, StepFailed, StepCancelled, StepSkipped} {
		sess := New(string(step), string(step))
		sess.Step = step
		require.NoError(t, store.Save(ctx, sess))
	}
	require.NoError(t, store.Save(ctx, New("live", "live")))

	removed, err := store.ClearTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "live", all[0].TargetID)
}

func TestStoreStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("a", "a")))
	require.NoError(t, store.Save(ctx, New("b", "b")))
	done := New("c", "c")
	done.Step = StepCompleted
	require.NoError(t, store.Save(ctx, done))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[StepListing])
	assert.Equal(t, 1, stats[StepCompleted])
}

func TestStoreListSkipsUndecodableRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("good", "good")))
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO sessions (target_id, name, step, selected_index, pending_input, revision, created_at, updated_at)
         VALUES ('bad', 'bad', 'not_a_step', -1, 'none', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].TargetID)
}

func TestOpenRecreatesCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file"), 0o644))

	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backups int
	for _, entry := range entries {
		if entry.Name() != "sessions.db" && filepath.Ext(entry.Name()) != ".db-wal" {
			backups++
		}
	}
	assert.GreaterOrEqual(t, backups, 1, "corrupt file should be moved aside")
}

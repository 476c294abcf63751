package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

func TestCheckpointLifecycle(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Checkpoints()

	progress := &core.SyncProgress{
		SyncID:   "sync-001",
		Type:     core.SyncTypeFull,
		Phase:    core.PhaseGremia,
		DateFrom: "2010-01-01",
		DateTo:   "2026-08-30",
	}
	require.NoError(t, repo.CreateSync(ctx, progress))
	assert.Equal(t, core.SyncStatusRunning, progress.Status)
	assert.False(t, progress.StartedAt.IsZero())

	// Checkpoint mid-phase.
	progress.Phase = core.PhaseMeetings
	progress.TotalItems = 100
	progress.ProcessedItems = 37
	progress.LastProcessedID = 1037
	require.NoError(t, repo.SaveProgress(ctx, progress))

	loaded, err := repo.GetProgress(ctx, "sync-001")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseMeetings, loaded.Phase)
	assert.Equal(t, 37, loaded.ProcessedItems)
	assert.Equal(t, int64(1037), loaded.LastProcessedID)
	assert.Equal(t, core.SyncStatusRunning, loaded.Status)

	running, err := repo.FindRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sync-001", running.SyncID)

	// Complete it; no run should be found after.
	progress.Phase = core.TerminalPhase
	progress.Status = core.SyncStatusCompleted
	progress.ProcessedItems = 100
	progress.CompletedAt = time.Now().UTC()
	require.NoError(t, repo.SaveProgress(ctx, progress))

	_, err = repo.FindRunning(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	final, err := repo.GetProgress(ctx, "sync-001")
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusCompleted, final.Status)
	assert.False(t, final.CompletedAt.IsZero())
}

func TestCheckpointNotFound(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Checkpoints()

	_, err = repo.GetProgress(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.FindRunning(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.SaveProgress(ctx, &core.SyncProgress{
		SyncID: "missing",
		Type:   core.SyncTypeFull,
		Phase:  core.PhaseGremia,
		Status: core.SyncStatusRunning,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointInterruptedIsResumable(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Checkpoints()

	progress := &core.SyncProgress{
		SyncID: "sync-int",
		Type:   core.SyncTypeIncremental,
		Phase:  core.PhaseDocuments,
	}
	require.NoError(t, repo.CreateSync(ctx, progress))

	progress.Status = core.SyncStatusInterrupted
	progress.Error = "signal: interrupt"
	require.NoError(t, repo.SaveProgress(ctx, progress))

	interrupted, err := repo.ListByStatus(ctx, core.SyncStatusInterrupted)
	require.NoError(t, err)
	require.Len(t, interrupted, 1)
	assert.Equal(t, "sync-int", interrupted[0].SyncID)
	assert.Equal(t, "signal: interrupt", interrupted[0].Error)
	assert.True(t, interrupted[0].Resumable())
}

func TestCheckpointFindRunningPrefersLatest(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Checkpoints()

	older := &core.SyncProgress{SyncID: "sync-a", Type: core.SyncTypeFull, Phase: core.PhaseGremia}
	require.NoError(t, repo.CreateSync(ctx, older))
	older.Status = core.SyncStatusFailed
	older.Error = "connection refused"
	require.NoError(t, repo.SaveProgress(ctx, older))

	newer := &core.SyncProgress{SyncID: "sync-b", Type: core.SyncTypeFull, Phase: core.PhaseGremia}
	require.NoError(t, repo.CreateSync(ctx, newer))

	running, err := repo.FindRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sync-b", running.SyncID)
}

func TestCreateSyncRejectsInvalid(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	err = backend.Checkpoints().CreateSync(context.Background(), &core.SyncProgress{
		SyncID:   "bad-range",
		Type:     core.SyncTypeFull,
		Phase:    core.PhaseGremia,
		DateFrom: "2026-01-01",
		DateTo:   "2020-01-01",
	})
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// checkpointRepo implements storage.CheckpointStore on SQLite.
type checkpointRepo struct {
	backend *Backend
}

var _ storage.CheckpointStore = (*checkpointRepo)(nil)

const syncProgressColumns = `sync_id, sync_type, phase, date_from, date_to,
	total_items, processed_items, last_processed_id, status, error,
	started_at, updated_at, completed_at`

// CreateSync inserts a new sync progress row with status running.
func (r *checkpointRepo) CreateSync(ctx context.Context, progress *core.SyncProgress) error {
	if err := core.ValidateSyncProgress(progress); err != nil {
		return err
	}

	now := time.Now().UTC()
	if progress.StartedAt.IsZero() {
		progress.StartedAt = now
	}
	progress.UpdatedAt = now
	progress.Status = core.SyncStatusRunning

	_, err := r.backend.db.ExecContext(ctx, `
		INSERT INTO sync_progress (`+syncProgressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		progress.SyncID, string(progress.Type), progress.Phase.String(),
		progress.DateFrom, progress.DateTo,
		progress.TotalItems, progress.ProcessedItems, progress.LastProcessedID,
		string(progress.Status), progress.Error,
		progress.StartedAt, progress.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sync %s: %w", progress.SyncID, err)
	}
	return nil
}

// SaveProgress persists the checkpoint for an existing sync.
func (r *checkpointRepo) SaveProgress(ctx context.Context, progress *core.SyncProgress) error {
	if err := core.ValidateSyncProgress(progress); err != nil {
		return err
	}

	progress.UpdatedAt = time.Now().UTC()

	var completedAt any
	if !progress.CompletedAt.IsZero() {
		completedAt = progress.CompletedAt
	}

	res, err := r.backend.db.ExecContext(ctx, `
		UPDATE sync_progress
		SET phase = ?, total_items = ?, processed_items = ?, last_processed_id = ?,
			status = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE sync_id = ?`,
		progress.Phase.String(), progress.TotalItems, progress.ProcessedItems,
		progress.LastProcessedID, string(progress.Status), progress.Error,
		progress.UpdatedAt, completedAt, progress.SyncID)
	if err != nil {
		return fmt.Errorf("save progress %s: %w", progress.SyncID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sync %s: %w", progress.SyncID, storage.ErrNotFound)
	}
	return nil
}

// FindRunning returns the most recent running sync, if any.
func (r *checkpointRepo) FindRunning(ctx context.Context) (*core.SyncProgress, error) {
	row := r.backend.db.QueryRowContext(ctx, `
		SELECT `+syncProgressColumns+` FROM sync_progress
		WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(core.SyncStatusRunning))
	return scanSyncProgress(row)
}

// GetProgress retrieves a sync by ID.
func (r *checkpointRepo) GetProgress(ctx context.Context, syncID string) (*core.SyncProgress, error) {
	row := r.backend.db.QueryRowContext(ctx, `
		SELECT `+syncProgressColumns+` FROM sync_progress WHERE sync_id = ?`, syncID)
	return scanSyncProgress(row)
}

// ListByStatus returns all syncs in the given state, most recent first.
func (r *checkpointRepo) ListByStatus(ctx context.Context, status core.SyncStatus) ([]*core.SyncProgress, error) {
	rows, err := r.backend.db.QueryContext(ctx, `
		SELECT `+syncProgressColumns+` FROM sync_progress
		WHERE status = ? ORDER BY started_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*core.SyncProgress
	for rows.Next() {
		p, err := scanSyncProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncProgress(row rowScanner) (*core.SyncProgress, error) {
	var p core.SyncProgress
	var syncType, phase, status string
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&p.SyncID, &syncType, &phase, &p.DateFrom, &p.DateTo,
		&p.TotalItems, &p.ProcessedItems, &p.LastProcessedID, &status, &errMsg,
		&p.StartedAt, &p.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync progress: %w", err)
	}

	p.Type = core.SyncType(syncType)
	p.Status = core.SyncStatus(status)
	p.Error = errMsg.String
	if completedAt.Valid {
		p.CompletedAt = completedAt.Time
	}

	parsed, err := core.ParsePhase(phase)
	if err != nil {
		return nil, err
	}
	p.Phase = parsed

	return &p, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// documentRepo implements storage.DocumentStore on SQLite.
type documentRepo struct {
	backend *Backend
}

var _ storage.DocumentStore = (*documentRepo)(nil)

// UpsertGremium inserts or updates a gremium keyed by provider ID.
func (r *documentRepo) UpsertGremium(ctx context.Context, g *core.Gremium) (int64, error) {
	active := 0
	if g.Active {
		active = 1
	}
	_, err := r.backend.db.ExecContext(ctx, `
		INSERT INTO gremia (provider_id, name, kind, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			active = excluded.active`,
		g.ProviderID, g.Name, g.Kind, active)
	if err != nil {
		return 0, fmt.Errorf("upsert gremium %s: %w", g.ProviderID, err)
	}
	return r.idForProvider(ctx, "gremia", g.ProviderID)
}

// UpsertMeeting inserts or updates a meeting keyed by provider ID.
func (r *documentRepo) UpsertMeeting(ctx context.Context, m *core.Meeting) (int64, error) {
	var gremiumID any
	if m.GremiumID != 0 {
		gremiumID = m.GremiumID
	}
	_, err := r.backend.db.ExecContext(ctx, `
		INSERT INTO meetings (provider_id, gremium_id, title, date, location, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			gremium_id = excluded.gremium_id,
			title = excluded.title,
			date = excluded.date,
			location = excluded.location,
			status = excluded.status`,
		m.ProviderID, gremiumID, m.Title, m.Date, m.Location, m.Status)
	if err != nil {
		return 0, fmt.Errorf("upsert meeting %s: %w", m.ProviderID, err)
	}
	return r.idForProvider(ctx, "meetings", m.ProviderID)
}

// UpsertDocument inserts or updates document metadata keyed by provider ID.
// Text content and download status of an existing row are left untouched; a
// metadata refresh must not discard extraction work.
func (r *documentRepo) UpsertDocument(ctx context.Context, d *core.Document) (int64, error) {
	var meetingID any
	if d.MeetingID != 0 {
		meetingID = d.MeetingID
	}
	_, err := r.backend.db.ExecContext(ctx, `
		INSERT INTO documents (provider_id, meeting_id, title, url, download_status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			meeting_id = excluded.meeting_id,
			title = excluded.title,
			url = excluded.url,
			updated_at = CURRENT_TIMESTAMP`,
		d.ProviderID, meetingID, d.Title, d.URL, string(core.DownloadPending))
	if err != nil {
		return 0, fmt.Errorf("upsert document %s: %w", d.ProviderID, err)
	}
	return r.idForProvider(ctx, "documents", d.ProviderID)
}

func (r *documentRepo) idForProvider(ctx context.Context, table, providerID string) (int64, error) {
	var id int64
	err := r.backend.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE provider_id = ?", table), providerID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup %s %s: %w", table, providerID, err)
	}
	return id, nil
}

// GetDocument retrieves a document by ID.
func (r *documentRepo) GetDocument(ctx context.Context, id int64) (*core.Document, error) {
	row := r.backend.db.QueryRowContext(ctx, `
		SELECT id, provider_id, meeting_id, title, url, text_content, content_hash,
			download_status, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetMeeting retrieves a meeting by ID.
func (r *documentRepo) GetMeeting(ctx context.Context, id int64) (*core.Meeting, error) {
	var m core.Meeting
	var gremiumID sql.NullInt64
	var date, location, status sql.NullString

	err := r.backend.db.QueryRowContext(ctx, `
		SELECT id, provider_id, gremium_id, title, date, location, status
		FROM meetings WHERE id = ?`, id).
		Scan(&m.ID, &m.ProviderID, &gremiumID, &m.Title, &date, &location, &status)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan meeting %d: %w", id, err)
	}

	m.GremiumID = gremiumID.Int64
	m.Date = date.String
	m.Location = location.String
	m.Status = status.String
	return &m, nil
}

// PendingDownload returns documents waiting for download, ordered by ID so
// checkpoint resumption can compare numerically against last_processed_id.
func (r *documentRepo) PendingDownload(ctx context.Context) ([]*core.Document, error) {
	return r.queryDocuments(ctx, `
		SELECT id, provider_id, meeting_id, title, url, text_content, content_hash,
			download_status, created_at, updated_at
		FROM documents
		WHERE download_status = ? AND url IS NOT NULL AND url != ''
		ORDER BY id`, string(core.DownloadPending))
}

// DocumentsWithText returns documents that have extracted text, ordered by ID.
func (r *documentRepo) DocumentsWithText(ctx context.Context) ([]*core.Document, error) {
	return r.queryDocuments(ctx, `
		SELECT id, provider_id, meeting_id, title, url, text_content, content_hash,
			download_status, created_at, updated_at
		FROM documents
		WHERE text_content IS NOT NULL AND text_content != ''
		ORDER BY id`)
}

func (r *documentRepo) queryDocuments(ctx context.Context, query string, args ...any) ([]*core.Document, error) {
	rows, err := r.backend.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateContent stores extracted text along with its content hash and marks
// the document text_extracted.
func (r *documentRepo) UpdateContent(ctx context.Context, id int64, text string) error {
	res, err := r.backend.db.ExecContext(ctx, `
		UPDATE documents
		SET text_content = ?, content_hash = ?, download_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		text, core.HashContent(text), string(core.DownloadExtracted), id)
	if err != nil {
		return fmt.Errorf("update document %d content: %w", id, err)
	}
	return requireAffected(res, id)
}

// UpdateStatus sets a document's download status.
func (r *documentRepo) UpdateStatus(ctx context.Context, id int64, status core.DownloadStatus) error {
	res, err := r.backend.db.ExecContext(ctx, `
		UPDATE documents SET download_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("update document %d status: %w", id, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var d core.Document
	var meetingID sql.NullInt64
	var url, text, hash sql.NullString
	var status string

	err := row.Scan(&d.ID, &d.ProviderID, &meetingID, &d.Title, &url, &text, &hash,
		&status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	d.MeetingID = meetingID.Int64
	d.URL = url.String
	d.TextContent = text.String
	d.ContentHash = hash.String
	d.Status = core.DownloadStatus(status)
	return &d, nil
}

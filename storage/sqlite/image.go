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

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// imageRepo implements storage.ImageRowStore on SQLite.
//
// Every mutation that touches reference_count runs in a single transaction.
// SQLite serializes writers, so a release can never interleave with a put on
// the same hash: double-decrement and increment-during-deletion are excluded
// at the storage layer.
type imageRepo struct {
	backend *Backend
}

var _ storage.ImageRowStore = (*imageRepo)(nil)

const uniqueImageColumns = `id, hash, file_path, width, height, file_size,
	ocr_text, ocr_status, reference_count, created_at`

// FindUniqueByHash retrieves a unique image by perceptual hash.
func (r *imageRepo) FindUniqueByHash(ctx context.Context, hash string) (*core.UniqueImage, error) {
	row := r.backend.db.QueryRowContext(ctx, `
		SELECT `+uniqueImageColumns+` FROM unique_images WHERE hash = ?`, hash)
	return scanUniqueImage(row)
}

// InsertUniqueWithRef inserts a unique image with reference count 1 and its
// first document reference atomically.
func (r *imageRepo) InsertUniqueWithRef(ctx context.Context, img *core.UniqueImage, ref *core.ImageRef) error {
	if err := core.ValidateUniqueImage(img); err != nil {
		return err
	}

	return r.backend.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO unique_images (hash, file_path, width, height, file_size, ocr_status, reference_count)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			img.Hash, img.FilePath, img.Width, img.Height, img.FileSize,
			string(core.OCRStatusPending))
		if err != nil {
			return fmt.Errorf("insert unique image %s: %w", img.Hash, err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		img.ID = id
		img.ReferenceCount = 1

		ref.Hash = img.Hash
		ref.UniqueImageID = id
		ref.FilePath = img.FilePath
		return insertRef(ctx, tx, ref)
	})
}

// AddRef increments the reference count for an existing hash and records the
// new document reference, atomically. This is the dedup fast path: no file
// bytes move, only rows.
func (r *imageRepo) AddRef(ctx context.Context, hash string, ref *core.ImageRef) (*core.UniqueImage, error) {
	var img *core.UniqueImage

	err := r.backend.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE unique_images SET reference_count = reference_count + 1 WHERE hash = ?`, hash)
		if err != nil {
			return fmt.Errorf("increment reference %s: %w", hash, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("unique image %s: %w", hash, storage.ErrNotFound)
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+uniqueImageColumns+` FROM unique_images WHERE hash = ?`, hash)
		img, err = scanUniqueImage(row)
		if err != nil {
			return err
		}

		ref.Hash = hash
		ref.UniqueImageID = img.ID
		ref.FilePath = img.FilePath
		return insertRef(ctx, tx, ref)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// InsertStandaloneRef records an image stored outside the shared pool.
func (r *imageRepo) InsertStandaloneRef(ctx context.Context, ref *core.ImageRef) error {
	return r.backend.withTx(ctx, func(tx *sql.Tx) error {
		return insertRef(ctx, tx, ref)
	})
}

func insertRef(ctx context.Context, tx *sql.Tx, ref *core.ImageRef) error {
	var uniqueID any
	if ref.UniqueImageID != 0 {
		uniqueID = ref.UniqueImageID
	}
	var hash any
	if ref.Hash != "" {
		hash = ref.Hash
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO document_images (document_id, image_index, hash, unique_image_id, file_path, ocr_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ref.DocumentID, ref.ImageIndex, hash, uniqueID, ref.FilePath,
		string(core.OCRStatusPending))
	if err != nil {
		return fmt.Errorf("insert image ref doc=%d idx=%d: %w", ref.DocumentID, ref.ImageIndex, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ref.ID = id
	ref.OCRStatus = core.OCRStatusPending
	return nil
}

// RefsForDocument returns all image references of a document in image order.
func (r *imageRepo) RefsForDocument(ctx context.Context, documentID int64) ([]*core.ImageRef, error) {
	rows, err := r.backend.db.QueryContext(ctx, `
		SELECT id, document_id, image_index, hash, unique_image_id, file_path, ocr_text, ocr_status
		FROM document_images WHERE document_id = ? ORDER BY image_index`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*core.ImageRef
	for rows.Next() {
		ref, err := scanImageRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ReleaseRef removes one document reference and decrements the shared count.
// Decrement, check and delete form one transaction: two concurrent releases
// of the same hash cannot both observe zero, and a concurrent AddRef either
// runs before the decrement (count stays positive, row survives) or after the
// transaction ends (and fails with ErrNotFound on a deleted row).
func (r *imageRepo) ReleaseRef(ctx context.Context, refID int64) (string, error) {
	var path string

	err := r.backend.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, document_id, image_index, hash, unique_image_id, file_path, ocr_text, ocr_status
			FROM document_images WHERE id = ?`, refID)
		ref, err := scanImageRef(row)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM document_images WHERE id = ?`, refID); err != nil {
			return fmt.Errorf("delete image ref %d: %w", refID, err)
		}

		if ref.Standalone() {
			// No shared row to maintain; the standalone file goes with the ref.
			path = ref.FilePath
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE unique_images SET reference_count = reference_count - 1
			WHERE id = ? AND reference_count > 0`, ref.UniqueImageID); err != nil {
			return fmt.Errorf("decrement reference %d: %w", ref.UniqueImageID, err)
		}

		var remaining int
		var filePath string
		err = tx.QueryRowContext(ctx, `
			SELECT reference_count, file_path FROM unique_images WHERE id = ?`, ref.UniqueImageID).
			Scan(&remaining, &filePath)
		if err == sql.ErrNoRows {
			return fmt.Errorf("unique image %d: %w", ref.UniqueImageID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM unique_images WHERE id = ?`, ref.UniqueImageID); err != nil {
				return fmt.Errorf("delete unique image %d: %w", ref.UniqueImageID, err)
			}
			path = filePath
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// PendingOCR returns unique images whose OCR has not run yet.
func (r *imageRepo) PendingOCR(ctx context.Context) ([]*core.UniqueImage, error) {
	rows, err := r.backend.db.QueryContext(ctx, `
		SELECT `+uniqueImageColumns+` FROM unique_images
		WHERE ocr_status = ? ORDER BY id`, string(core.OCRStatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*core.UniqueImage
	for rows.Next() {
		img, err := scanUniqueImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// SetUniqueOCR stores the OCR result once per unique hash; every referencing
// document shares it.
func (r *imageRepo) SetUniqueOCR(ctx context.Context, id int64, text string, status core.OCRStatus) error {
	res, err := r.backend.db.ExecContext(ctx, `
		UPDATE unique_images SET ocr_text = ?, ocr_status = ? WHERE id = ?`,
		text, string(status), id)
	if err != nil {
		return fmt.Errorf("set ocr for unique image %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("unique image %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanUniqueImage(row rowScanner) (*core.UniqueImage, error) {
	var img core.UniqueImage
	var ocrText sql.NullString
	var status string

	err := row.Scan(&img.ID, &img.Hash, &img.FilePath, &img.Width, &img.Height,
		&img.FileSize, &ocrText, &status, &img.ReferenceCount, &img.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan unique image: %w", err)
	}

	img.OCRText = ocrText.String
	img.OCRStatus = core.OCRStatus(status)
	return &img, nil
}

func scanImageRef(row rowScanner) (*core.ImageRef, error) {
	var ref core.ImageRef
	var hash, ocrText sql.NullString
	var uniqueID sql.NullInt64
	var status string

	err := row.Scan(&ref.ID, &ref.DocumentID, &ref.ImageIndex, &hash, &uniqueID,
		&ref.FilePath, &ocrText, &status)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan image ref: %w", err)
	}

	ref.Hash = hash.String
	ref.UniqueImageID = uniqueID.Int64
	ref.OCRText = ocrText.String
	ref.OCRStatus = core.OCRStatus(status)
	return &ref, nil
}

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


package core

import "fmt"

// ValidateSyncType validates that a SyncType has a known value.
func ValidateSyncType(t SyncType) error {
	switch t {
	case SyncTypeFull, SyncTypeIncremental:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSyncType, t)
	}
}

// ValidateSyncProgress validates a SyncProgress checkpoint.
//
// Validation rules:
//   - SyncType must be full or incremental
//   - Phase must be a known pipeline phase
//   - ProcessedItems must not exceed TotalItems once TotalItems is known
//   - A completed sync must be at the terminal phase
//   - DateFrom must not be after DateTo when both are set
func ValidateSyncProgress(p *SyncProgress) error {
	if p == nil {
		return fmt.Errorf("sync progress is nil")
	}

	if err := ValidateSyncType(p.Type); err != nil {
		return err
	}

	if _, ok := phaseNames[p.Phase]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, p.Phase)
	}

	if p.TotalItems > 0 && p.ProcessedItems > p.TotalItems {
		return fmt.Errorf("%w: %d > %d", ErrProgressOverflow, p.ProcessedItems, p.TotalItems)
	}

	if p.Status == SyncStatusCompleted && p.Phase != TerminalPhase {
		return fmt.Errorf("completed sync must be at phase %s, got %s", TerminalPhase, p.Phase)
	}

	if p.DateFrom != "" && p.DateTo != "" && p.DateFrom > p.DateTo {
		return fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, p.DateFrom, p.DateTo)
	}

	return nil
}

// ValidateUniqueImage validates a UniqueImage row.
func ValidateUniqueImage(img *UniqueImage) error {
	if img == nil {
		return fmt.Errorf("unique image is nil")
	}

	if img.Hash == "" {
		return ErrEmptyHash
	}

	if img.ReferenceCount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeRefCount, img.ReferenceCount)
	}

	return nil
}

// ValidateEmbeddingChunk validates an EmbeddingChunk before storage.
func ValidateEmbeddingChunk(chunk *EmbeddingChunk) error {
	if chunk == nil {
		return fmt.Errorf("embedding chunk is nil")
	}

	if chunk.ChunkText == "" {
		return ErrEmptyChunk
	}

	if len(chunk.Vector) == 0 {
		return ErrEmptyVector
	}

	return nil
}

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

import "errors"

// Domain validation errors
var (
	// ErrUnknownPhase indicates a stored phase name that is not part of the pipeline.
	ErrUnknownPhase = errors.New("unknown sync phase")

	// ErrInvalidSyncType indicates a sync type other than full or incremental.
	ErrInvalidSyncType = errors.New("invalid sync type")

	// ErrInvalidDateRange indicates date_from is after date_to.
	ErrInvalidDateRange = errors.New("date_from must not be after date_to")

	// ErrProgressOverflow indicates processed_items exceeds total_items.
	ErrProgressOverflow = errors.New("processed items exceed total items")

	// ErrNegativeRefCount indicates a reference count below zero.
	ErrNegativeRefCount = errors.New("reference count cannot be negative")

	// ErrEmptyHash indicates a unique image without a perceptual hash.
	ErrEmptyHash = errors.New("image hash cannot be empty")

	// ErrEmptyChunk indicates an embedding chunk with no text.
	ErrEmptyChunk = errors.New("chunk text cannot be empty")

	// ErrEmptyVector indicates an embedding chunk with no vector.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")
)

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


// Package storage provides the storage abstraction layer for raadsync.
//
// It defines repository interfaces that decouple storage implementation from
// business logic: checkpoints for sync progress, provider metadata, image
// reference rows and embedding chunks. The sqlite subpackage is the canonical
// backend; tests may use its in-memory helper or mock the interfaces.
//
// # Architecture
//
//   - CheckpointStore: sync progress rows for crash recovery
//   - DocumentStore: gremia, meetings and document metadata
//   - ImageRowStore: unique_images / document_images with atomic reference counting
//   - EmbeddingStore: embedding chunks for the semantic index
//   - Store: aggregation plus integrity verification
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support concurrent
// access from multiple goroutines. Reference-count mutations are defined as
// single transactions; see ImageRowStore.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and timeout
// support.
package storage

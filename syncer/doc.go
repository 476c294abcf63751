// Package syncer orchestrates the phased ingestion pipeline that pulls
// council data from a provider API into local storage.
//
// A sync run walks five phases in fixed order: gremia, meetings, documents,
// ocr, indexing. Progress is checkpointed to the checkpoint store as the run
// advances, so a crashed or interrupted run resumes where it left off rather
// than starting over. The metadata phases (gremia, meetings) are redone on
// resume because upserts make them idempotent; the item phases (documents,
// ocr, indexing) filter by the last processed ID and only touch remaining
// work.
//
// Cancellation is cooperative: callers stop a run through the Token, which
// the run loop polls between items. A stopped run checkpoints and finishes
// with status interrupted.
package syncer

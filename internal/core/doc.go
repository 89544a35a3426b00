// Package core provides the business logic for turning uploaded CSV files
// into normalized facts.
//
// This package holds all domain orchestration independent of any transport.
// It can be used by the HTTP handlers, the factctl CLI, or tests without
// modification.
//
// # Flow
//
// An upload moves through four steps, each one a [Service] method:
//
//  1. [Service.RegisterUpload] stores the file and returns an UploadJob.
//  2. [Service.AnalyzeStructure] detects encoding, delimiter, header and
//     column types. The result is cached under the file's SHA-256, so
//     re-analyzing an unchanged file returns the stored analysis.
//  3. [Service.SuggestMappings] proposes a dimension role per column;
//     [Service.SaveMapping] records the user's choices and
//     [Service.ValidateMappings] checks the set.
//  4. [Service.StartProcessing] submits a background job that extracts,
//     deduplicates, scores and persists fact records. Progress is available
//     through [Service.JobStatus] and [Service.SubscribeProgress].
//
// # Retries
//
// Starting a job while the upload's previous job is still PENDING or RUNNING
// fails with model.ErrJobInProgress. Once the previous job has finished, a
// new job replaces all facts the upload's earlier jobs wrote.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (constraints, connections, timeouts)
//   - VAL001-VAL004: Validation errors (numbers, dates, dimension types)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - MAP001-MAP003: Mapping errors (missing roles, unknown analysis)
//   - JOB001-JOB004: Job errors (in progress, busy, not found, state)
package core

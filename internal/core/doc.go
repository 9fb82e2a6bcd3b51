// Package core runs the EC package spreadsheet jobs.
//
// The package sits between the delivery surfaces (HTTP server and CLI) and
// the pure table transformations in internal/transform. It owns everything
// that is stateful or operational: job limits, sessions, templates, output
// packaging, and job history.
//
// # Modes
//
// Each upload is handled by one [Mode]:
//
//   - chunk, chunk500, chunk250: fix codes, deduplicate, split the register
//     into template-populated chunks, and return them as one zip archive
//     ([Service.RunChunk]). chunk250 names its files in steps of 250.
//   - passport: rewrite passport codes in place ([Service.RunPassport]).
//   - replace_pinfl: two uploads joined by a [Session]
//     ([Service.CreateSession], [Service.AttachSource],
//     [Service.CompleteSession]).
//
// # Jobs
//
// Every job takes a [JobLimiter] slot, runs under the configured timeout,
// and is recorded in a [HistoryStore] when it ends. A job either produces
// all of its artifacts or returns an error; artifacts are built in memory
// and handed to the caller only on success.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix: XLS (spreadsheet), CFG (configuration),
// JOIN (PINFL inputs), SES (sessions), JOB (limits and timeouts), FILE
// (uploads).
package core

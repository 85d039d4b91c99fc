// Package core provides the business logic of the completions tracker.
//
// It covers the project hierarchy (projects, systems, subsystems and ITRs),
// test packs and their tags, the activity log, import history, users,
// attachments and the email report schedule. It has no transport
// dependencies; the web server and the CLI both drive it through [Service].
//
// # Persistence
//
// All reads and writes go through the [Store] interface. Each call is one
// atomic select, insert, update or delete; there are no cross-call
// transactions. internal/database implements Store on PostgreSQL and
// coretest.MemStore implements it in memory for tests.
//
// # Sessions
//
// Every Service method takes the caller's [Session] explicitly. Reads need a
// live session, tracking changes need the editor or admin role, and user and
// report management need admin. Each successful mutation appends one
// [ActivityLogEntry].
//
// # Workbook import
//
// [Service.ImportWorkbook] runs four stages:
//
//  1. [ParseWorkbook] reads the first sheet into [RawRow]s, resolving header
//     aliases and expanding the flat export layout.
//  2. [ValidateRow] turns each RawRow into a [TestPackRow], [TagRow] or
//     [InvalidRow].
//  3. [LinkRows] attaches tags to test packs by zero-based index.
//  4. [Service.WriteGroups] inserts all test packs in one batch, then all
//     tags in a second batch.
//
// Row problems are counted and reported, never fatal. A failed first batch
// writes nothing; a failed second batch leaves the test packs and marks the
// import partial. [Service.RollbackImport] deletes what an import created.
//
// [ExportWorkbook] writes the reverse: one row per tag with its test pack's
// fields, in a layout [ParseWorkbook] reads back.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. See
// error_messages.go for the code catalogue.
package core

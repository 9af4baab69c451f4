// Package core is the in-memory table store behind the sheet editor.
//
// It loads delimited text and spreadsheet files into typed tables, searches
// across them, and applies deletes and edits to matched rows. It has no
// transport or UI dependencies; the web package is one frontend.
//
// # Data model
//
// A [Table] has a fixed column schema inferred at load time and rows of
// [Value] cells, a tagged variant of Null, Number, Boolean and Text. Rows are
// addressed by [RowID]. Ids are dense when a file is loaded and stay stable
// afterwards: deleting rows leaves gaps, and only [Compact] renumbers.
//
// A [Store] maps table names to tables in insertion order. Every load starts
// a new store generation; row ids and search results are only meaningful
// inside the generation that produced them.
//
// # Sessions
//
// A [Session] owns one Store, the results of its last search and an audit
// trail. Its operations run one at a time behind a [Gate]:
//
//  1. [Session.Load] parses uploads in parallel and replaces the store,
//     unless the same set of files is already loaded
//  2. [Session.Search] and [Session.SearchTerms] scan every table and hold
//     the matches
//  3. [Session.Results] re-validates held matches against the store
//  4. [Session.Delete], [Session.DeleteMatches], [Session.Update] and
//     [Session.BatchEdit] change tables and discard held matches
//  5. [Session.Export] and [Session.Convert] write tables back out as CSV
//
// [Session.Preview] parses uploads without touching the store and does not
// take the session gate. Loads, searches, edits and exports are recorded in
// the session's [AuditTrail].
//
// # Coercion
//
// Loading is strict: only plain decimals that a float64 holds exactly and
// true/false are typed, anything else stays text. Edits are lenient and accept currency symbols, thousands
// grouping, accounting negatives and yes/no booleans. An edit that does not
// fit its column is stored as text rather than rejected.
//
// # Error Handling
//
// Errors are mapped to user-facing messages with support codes by
// [MapError]; see error_messages.go for the reference.
package core

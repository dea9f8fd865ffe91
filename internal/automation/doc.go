// Package automation contains the tick-driven trigger engine and the
// occurrence materializer.
//
// The engine scans enabled rules against the event list, fires each
// (rule, event) pair at most once, and flushes the store a single time per
// tick. Firing attempts return explicit outcomes (Fired / Deferred /
// Skipped) instead of signaling through errors; a Deferred pair is simply
// retried on a later tick because it was never marked executed.
package automation

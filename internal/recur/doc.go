// Package recur expands a recurrence rule into concrete future start
// instants inside a bounded horizon.
//
// Expansion is pure: no clock reads, no I/O, no hidden state. A Sequence is
// cheap to build and restartable — every Cursor() call walks the same
// inputs from the top, so two drains of the same Sequence always agree.
//
// All candidates are rebuilt as "calendar date + base event time of day" in
// the base event's location. This is deliberate naive wall-clock
// arithmetic; occurrences keep the printed time of day across DST edges.
package recur

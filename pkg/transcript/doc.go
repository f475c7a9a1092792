// Package transcript defines the conversation data model for agent queries.
//
// Invariants:
// - A transcript in a terminal status carries exactly one of Summary or Failure.
// - Turns are append-only and ordered by sequence number.
// - Turn count never exceeds the transcript's turn budget.
package transcript

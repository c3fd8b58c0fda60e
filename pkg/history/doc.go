// Package history persists the append-only attempt log: every batch and
// every step attempt, successful or not, lands in SQLite for replay and
// audit. Writes go through a single async writer so the orchestrator
// never blocks on the database.
package history

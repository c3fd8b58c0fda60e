// Package engine ties validation, sandboxed execution, and result
// normalization into the single-attempt pipeline and the batch/chain
// orchestrator: request -> Validator -> Executor -> Normalizer, looped
// per step for batches, with outputs optionally chained into the next
// step's input table.
package engine

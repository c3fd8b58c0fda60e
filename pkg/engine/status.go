package engine

// BatchStatus summarizes a finished batch.
type BatchStatus string

const (
	// BatchAllSucceeded means every step succeeded.
	BatchAllSucceeded BatchStatus = "all_succeeded"

	// BatchPartialSuccess means some steps succeeded and some did not.
	BatchPartialSuccess BatchStatus = "partial_success"

	// BatchAllFailed means no step succeeded.
	BatchAllFailed BatchStatus = "all_failed"

	// BatchAborted means a chained batch stopped on a non-tabular
	// intermediate result, or cancellation ended the batch early.
	BatchAborted BatchStatus = "aborted"
)

// summarize derives the batch status from its recorded steps. Aborted
// steps force the aborted status; otherwise the split between succeeded
// and failed steps decides.
func summarize(steps []BatchStep) BatchStatus {
	succeeded, failed := 0, 0
	for _, s := range steps {
		switch s.Status {
		case StepAborted:
			return BatchAborted
		case StepSucceeded:
			succeeded++
		case StepFailed:
			failed++
		}
	}
	switch {
	case succeeded > 0 && failed == 0:
		return BatchAllSucceeded
	case succeeded > 0:
		return BatchPartialSuccess
	default:
		return BatchAllFailed
	}
}

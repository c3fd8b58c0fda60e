package script

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that an execution exceeded its wall-clock or step
// budget. Partial results are discarded, never returned.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded budget of %v", e.Budget)
}

// RuntimeError reports a fault raised while the snippet ran: a missing
// column, a type mismatch, a division fault. Distinct from validation
// rejection; regenerated code may well succeed.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// IsTimeout reports whether err is a budget exhaustion.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

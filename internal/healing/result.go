package healing

import "time"

// Attempt records the outcome of a single try. ErrorType and Strategy
// are meaningful only when Err is non-empty; Wait is the delay applied
// after this attempt before the next one (zero on the final attempt).
type Attempt struct {
	Number    int
	ErrorType ErrorType
	Strategy  FixStrategy
	Wait      time.Duration
	At        time.Time
	Err       string
}

// Result describes one healing run. It is produced fresh per Execute
// call; Cancelled distinguishes an externally aborted run from one the
// loop gave up on.
type Result struct {
	OperationName string
	Succeeded     bool
	Cancelled     bool
	Attempts      []Attempt
	FinalError    error
	TotalDuration time.Duration
}

// LastAttempt returns the final attempt record, or a zero Attempt when
// the run was cancelled before any attempt.
func (r Result) LastAttempt() Attempt {
	if len(r.Attempts) == 0 {
		return Attempt{}
	}
	return r.Attempts[len(r.Attempts)-1]
}

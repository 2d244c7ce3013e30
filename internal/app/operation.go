package app

import "strings"

// Operation statuses recorded in the journal.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI invocation. It lives in memory with ID=0 until a
// command that changes terminal state persists it to the journal.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates an in-memory operation. Parameters are joined with
// spaces in the order given; empty values are skipped.
func NewOperation(name string, params ...string) *Operation {
	var kept []string
	for _, p := range params {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return &Operation{
		Name:       name,
		Parameters: strings.Join(kept, " "),
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Track marks the operation failed when err is non-nil and returns err.
func (op *Operation) Track(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

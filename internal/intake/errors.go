package intake

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotImage           = errors.New("invalid file type: please upload an image file (.jpg, .jpeg, .png)")
	ErrNoFile             = errors.New("no file provided")
	ErrUnknownSymptom     = errors.New("unknown symptom")
	ErrInvalidTransition  = errors.New("transition not allowed from current step")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrRecordFrozen       = errors.New("intake record is frozen; start over to edit")
	ErrSessionNotFound    = errors.New("intake session not found")
	ErrNoResult           = errors.New("no diagnosis result yet")
)

// ValidationError blocks a forward transition and names the missing fields.
type ValidationError struct {
	Step    int
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing information for step %d: %s", e.Step, strings.Join(e.Missing, ", "))
}

package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Predictor sends a frozen submission to the inference service.
// Defined here to keep the flow independent of the HTTP client.
type Predictor interface {
	Predict(ctx context.Context, sub Submission) (*DiagnosisResult, error)
}

// Flow is the four-step intake state machine of one session. All record edits and
// transitions are serialised by mu; Submit drops the lock only around the network call.
type Flow struct {
	mu sync.Mutex

	id         uuid.UUID
	state      State
	record     *Record
	uploader   *Uploader
	result     *DiagnosisResult
	lastErr    error
	status     string
	generation uint64
	lastActive time.Time

	predictor      Predictor
	statusMessages []string
	statusInterval time.Duration
}

// Snapshot is an immutable view of a flow.
type Snapshot struct {
	ID         string           `json:"id"`
	State      State            `json:"state"`
	Step       int              `json:"step"`
	Record     RecordView       `json:"record"`
	PreviewRef string           `json:"preview_ref,omitempty"`
	DragActive bool             `json:"drag_active"`
	Status     string           `json:"status,omitempty"`
	Error      string           `json:"error,omitempty"`
	Result     *DiagnosisResult `json:"result,omitempty"`
}

func NewFlow(predictor Predictor, previews PreviewStore, statusInterval time.Duration) *Flow {
	return &Flow{
		id:             uuid.New(),
		state:          StateStep1,
		record:         &Record{},
		uploader:       NewUploader(previews),
		lastActive:     time.Now(),
		predictor:      predictor,
		statusMessages: StatusMessages,
		statusInterval: statusInterval,
	}
}

func (f *Flow) ID() uuid.UUID { return f.id }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastError is the error surfaced by the last failed submission, if any.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Flow) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

func (f *Flow) Result() (*DiagnosisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return nil, ErrNoResult
	}
	res := *f.result
	return &res, nil
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		ID:         f.id.String(),
		State:      f.state,
		Step:       f.state.Step(),
		Record:     f.record.view(),
		PreviewRef: f.uploader.PreviewRef(),
		DragActive: f.uploader.DragActive(),
		Status:     f.status,
	}
	if f.lastErr != nil {
		s.Error = f.lastErr.Error()
	}
	if f.result != nil {
		res := *f.result
		s.Result = &res
	}
	return s
}

// edit applies fn to the record unless a submission is running or a result is shown.
func (f *Flow) edit(fn func(r *Record) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActive = time.Now()

	switch f.state {
	case StateSubmitting:
		return ErrSubmissionInFlight
	case StateResult:
		return ErrRecordFrozen
	}
	return fn(f.record)
}

func (f *Flow) SetPatientName(v string) error {
	return f.edit(func(r *Record) error { r.PatientName = v; return nil })
}

func (f *Flow) SetAge(v string) error {
	return f.edit(func(r *Record) error { r.Age = v; return nil })
}

func (f *Flow) SetHeight(v string) error {
	return f.edit(func(r *Record) error { r.SetHeight(v); return nil })
}

func (f *Flow) SetWeight(v string) error {
	return f.edit(func(r *Record) error { r.SetWeight(v); return nil })
}

func (f *Flow) SetManualSymptoms(v string) error {
	return f.edit(func(r *Record) error { r.ManualSymptoms = v; return nil })
}

func (f *Flow) ToggleSymptom(label string, checked bool) error {
	return f.edit(func(r *Record) error { return r.ToggleSymptom(label, checked) })
}

func (f *Flow) DragEnter() {
	f.mu.Lock()
	f.uploader.DragEnter()
	f.mu.Unlock()
}

func (f *Flow) DragOver() {
	f.mu.Lock()
	f.uploader.DragOver()
	f.mu.Unlock()
}

func (f *Flow) DragLeave() {
	f.mu.Lock()
	f.uploader.DragLeave()
	f.mu.Unlock()
}

func (f *Flow) AcceptDrop(file *UploadedFile) error {
	return f.edit(func(r *Record) error { return f.uploader.AcceptDrop(r, file) })
}

func (f *Flow) AcceptPick(file *UploadedFile) error {
	return f.edit(func(r *Record) error { return f.uploader.AcceptPick(r, file) })
}

// Next advances one step. Steps 1 and 2 are guarded by ValidateStep.
func (f *Flow) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActive = time.Now()

	switch f.state {
	case StateStep1:
		if err := ValidateStep(1, f.record); err != nil {
			return err
		}
		f.state = StateStep2
	case StateStep2:
		if err := ValidateStep(2, f.record); err != nil {
			return err
		}
		f.state = StateStep3
	case StateStep3:
		f.state = StateReview
	case StateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Prev goes back one step and is never guarded. It is a no-op on step 1.
func (f *Flow) Prev() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActive = time.Now()

	switch f.state {
	case StateStep1:
	case StateStep2:
		f.state = StateStep1
	case StateStep3:
		f.state = StateStep2
	case StateReview:
		f.state = StateStep3
	case StateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Submit sends the frozen record to the predictor. It is only enabled in review.
// onStatus, when non-nil, receives every rotating status message.
// On failure the flow returns to review with the error kept for display.
func (f *Flow) Submit(ctx context.Context, onStatus func(string)) (*DiagnosisResult, error) {
	f.mu.Lock()
	switch f.state {
	case StateReview:
	case StateSubmitting:
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	default:
		f.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	f.state = StateSubmitting
	f.lastErr = nil
	f.lastActive = time.Now()
	gen := f.generation
	sub := f.record.Freeze()
	f.mu.Unlock()

	rotator := NewStatusRotator(f.statusMessages, f.statusInterval, func(msg string) {
		f.mu.Lock()
		if f.generation == gen {
			f.status = msg
		}
		f.mu.Unlock()
		if onStatus != nil {
			onStatus(msg)
		}
	})
	rotator.Start()
	result, err := f.predictor.Predict(ctx, sub)
	rotator.Stop()
	if err == nil && result == nil {
		err = errors.New("prediction service returned no result")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActive = time.Now()

	if f.generation != gen {
		// Discarded while in flight: the record this answer belongs to is gone.
		if err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	f.status = ""
	if err != nil {
		f.state = StateReview
		f.lastErr = err
		return nil, err
	}
	f.result = result
	f.state = StateResult
	res := *result
	return &res, nil
}

// Reset starts over with an empty record and no result, releasing the preview.
// It is refused while a submission is in flight.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		f.lastActive = time.Now()
		return ErrSubmissionInFlight
	}
	f.clear()
	return nil
}

// Discard releases everything the flow holds, even mid-submission; a late
// answer is then dropped. The flow must not be used afterwards.
func (f *Flow) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clear()
}

func (f *Flow) clear() {
	f.generation++
	f.uploader.Release()
	f.uploader.DragLeave()
	f.record = &Record{}
	f.result = nil
	f.lastErr = nil
	f.status = ""
	f.state = StateStep1
	f.lastActive = time.Now()
}

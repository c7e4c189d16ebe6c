package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	mu      sync.Mutex
	calls   []Submission
	result  *DiagnosisResult
	err     error
	release chan struct{}
	started chan struct{}
}

func (p *fakePredictor) Predict(ctx context.Context, sub Submission) (*DiagnosisResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, sub)
	p.mu.Unlock()
	if p.started != nil {
		close(p.started)
	}
	if p.release != nil {
		<-p.release
	}
	return p.result, p.err
}

func (p *fakePredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type predictionError struct{ msg string }

func (e *predictionError) Error() string { return e.msg }

func okResult() *DiagnosisResult {
	return &DiagnosisResult{Prediction: "Non Demented", ClassIndex: 0, ConfidencePercent: "97.2%", Advice: "Keep active."}
}

// filledFlow returns a flow advanced to review with a complete record.
func filledFlow(t *testing.T, p Predictor) (*Flow, *MemoryPreviewStore) {
	t.Helper()
	previews := NewMemoryPreviewStore()
	f := NewFlow(p, previews, time.Millisecond)

	require.NoError(t, f.AcceptPick(png("scan.png")))
	require.NoError(t, f.SetPatientName("Jane Doe"))
	require.NoError(t, f.Next())
	require.NoError(t, f.SetAge("71"))
	require.NoError(t, f.SetHeight("180"))
	require.NoError(t, f.SetWeight("75"))
	require.NoError(t, f.Next())
	require.NoError(t, f.ToggleSymptom("Memory Loss", true))
	require.NoError(t, f.ToggleSymptom("Mood Changes", true))
	require.NoError(t, f.SetManualSymptoms("  sleep issues  "))
	require.NoError(t, f.Next())
	require.Equal(t, StateReview, f.State())
	return f, previews
}

func TestFlow_Step1Guard(t *testing.T) {
	f := NewFlow(&fakePredictor{}, NewMemoryPreviewStore(), time.Millisecond)

	var ve *ValidationError
	require.True(t, errors.As(f.Next(), &ve))
	assert.Equal(t, StateStep1, f.State())

	require.NoError(t, f.SetPatientName("  "))
	require.NoError(t, f.AcceptPick(png("scan.png")))
	require.True(t, errors.As(f.Next(), &ve))
	assert.Equal(t, []string{"patient name"}, ve.Missing)
	assert.Equal(t, StateStep1, f.State())

	require.NoError(t, f.SetPatientName("Jane"))
	require.NoError(t, f.Next())
	assert.Equal(t, StateStep2, f.State())
}

func TestFlow_Step2Guard(t *testing.T) {
	f := NewFlow(&fakePredictor{}, NewMemoryPreviewStore(), time.Millisecond)
	require.NoError(t, f.AcceptPick(png("scan.png")))
	require.NoError(t, f.SetPatientName("Jane"))
	require.NoError(t, f.Next())

	require.NoError(t, f.SetAge("70"))
	require.NoError(t, f.SetHeight("170"))
	var ve *ValidationError
	require.True(t, errors.As(f.Next(), &ve))
	assert.Equal(t, StateStep2, f.State())

	require.NoError(t, f.SetWeight("60"))
	require.NoError(t, f.Next())
	assert.Equal(t, StateStep3, f.State())

	// step 3 never blocks
	require.NoError(t, f.Next())
	assert.Equal(t, StateReview, f.State())
	assert.ErrorIs(t, f.Next(), ErrInvalidTransition)
}

func TestFlow_Prev(t *testing.T) {
	f, _ := filledFlow(t, &fakePredictor{})

	require.NoError(t, f.Prev())
	assert.Equal(t, StateStep3, f.State())
	require.NoError(t, f.Prev())
	assert.Equal(t, StateStep2, f.State())
	require.NoError(t, f.Prev())
	assert.Equal(t, StateStep1, f.State())
	require.NoError(t, f.Prev())
	assert.Equal(t, StateStep1, f.State())
}

func TestFlow_SubmitSuccess(t *testing.T) {
	p := &fakePredictor{result: okResult()}
	f, _ := filledFlow(t, p)

	var statuses messageLog
	res, err := f.Submit(context.Background(), statuses.add)
	require.NoError(t, err)
	assert.Equal(t, "Non Demented", res.Prediction)
	assert.Equal(t, StateResult, f.State())

	require.Equal(t, 1, p.callCount())
	sub := p.calls[0]
	assert.Equal(t, []string{"Memory Loss", "Mood Changes", "sleep issues"}, sub.Symptoms)
	assert.Equal(t, "23.15", sub.BMI)
	assert.Equal(t, "scan.png", sub.File.Name)

	require.NotEmpty(t, statuses.snapshot())
	assert.Equal(t, StatusMessages[0], statuses.snapshot()[0])

	snap := f.Snapshot()
	assert.Empty(t, snap.Status)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Result)

	assert.ErrorIs(t, f.Prev(), ErrInvalidTransition)
	assert.ErrorIs(t, f.SetAge("1"), ErrRecordFrozen)
	_, err = f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFlow_BlankManualSymptomsContributeNothing(t *testing.T) {
	p := &fakePredictor{result: okResult()}
	f, _ := filledFlow(t, p)
	require.NoError(t, f.SetManualSymptoms("   "))

	_, err := f.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Memory Loss", "Mood Changes"}, p.calls[0].Symptoms)
}

func TestFlow_SubmitFailureKeepsRecord(t *testing.T) {
	p := &fakePredictor{err: &predictionError{msg: "bad image"}}
	f, _ := filledFlow(t, p)

	_, err := f.Submit(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, StateReview, f.State())
	assert.Equal(t, "bad image", f.LastError().Error())

	snap := f.Snapshot()
	assert.Equal(t, "bad image", snap.Error)
	assert.Equal(t, "scan.png", snap.Record.FileName)
	assert.Equal(t, "Jane Doe", snap.Record.PatientName)
	assert.Equal(t, "23.15", snap.Record.BMI)
	assert.Equal(t, []string{"Memory Loss", "Mood Changes"}, snap.Record.Symptoms)
	assert.Nil(t, snap.Result)

	// fully re-submittable
	p.err = nil
	p.result = okResult()
	_, err = f.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateResult, f.State())
	assert.Nil(t, f.LastError())
}

func TestFlow_SubmitFailureStopsStatusMessages(t *testing.T) {
	p := &fakePredictor{err: &predictionError{msg: "bad image"}, release: make(chan struct{}), started: make(chan struct{})}
	f, _ := filledFlow(t, p)

	var (
		mu       sync.Mutex
		messages int
	)
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return messages
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), func(string) {
			mu.Lock()
			messages++
			mu.Unlock()
		})
		done <- err
	}()
	<-p.started
	require.Eventually(t, func() bool { return count() >= 2 }, time.Second, time.Millisecond)
	close(p.release)
	require.Error(t, <-done)

	after := count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, count())
	assert.Empty(t, f.Snapshot().Status)
}

func TestFlow_OneSubmissionInFlight(t *testing.T) {
	p := &fakePredictor{result: okResult(), release: make(chan struct{}), started: make(chan struct{})}
	f, _ := filledFlow(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), nil)
		done <- err
	}()
	<-p.started

	assert.Equal(t, StateSubmitting, f.State())
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Prev(), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Next(), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.SetPatientName("x"), ErrSubmissionInFlight)

	close(p.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, p.callCount())
}

func TestFlow_StartOverAfterResult(t *testing.T) {
	f, previews := filledFlow(t, &fakePredictor{result: okResult()})
	_, err := f.Submit(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, previews.Len())

	require.NoError(t, f.Reset())

	assert.Equal(t, StateStep1, f.State())
	snap := f.Snapshot()
	assert.Equal(t, RecordView{Symptoms: []string{}}, snap.Record)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.PreviewRef)
	_, err = f.Result()
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, 0, previews.Len())
}

func TestFlow_ResetRefusedDuringSubmission(t *testing.T) {
	p := &fakePredictor{result: okResult(), release: make(chan struct{}), started: make(chan struct{})}
	f, previews := filledFlow(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), nil)
		done <- err
	}()
	<-p.started

	assert.ErrorIs(t, f.Reset(), ErrSubmissionInFlight)
	assert.Equal(t, StateSubmitting, f.State())
	assert.Equal(t, "Jane Doe", f.Snapshot().Record.PatientName)
	assert.Equal(t, 1, previews.Len())

	// No second submission can be started for the session.
	assert.ErrorIs(t, f.AcceptPick(png("other.png")), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Next(), ErrSubmissionInFlight)
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(p.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, StateResult, f.State())
	require.NoError(t, f.Reset())
	assert.Equal(t, StateStep1, f.State())
}

func TestFlow_DiscardDuringSubmissionDropsLateResult(t *testing.T) {
	p := &fakePredictor{result: okResult(), release: make(chan struct{}), started: make(chan struct{})}
	f, previews := filledFlow(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), nil)
		done <- err
	}()
	<-p.started
	f.Discard()
	assert.Equal(t, 0, previews.Len())
	close(p.release)

	assert.Error(t, <-done)
	assert.Equal(t, StateStep1, f.State())
	assert.Nil(t, f.Snapshot().Result)
}

func TestFlow_SubmitOnlyFromReview(t *testing.T) {
	f := NewFlow(&fakePredictor{result: okResult()}, NewMemoryPreviewStore(), time.Millisecond)
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFlow_ToggleSymptom(t *testing.T) {
	f := NewFlow(&fakePredictor{}, NewMemoryPreviewStore(), time.Millisecond)
	require.NoError(t, f.ToggleSymptom("Mood Changes", true))
	require.NoError(t, f.ToggleSymptom("Memory Loss", true))
	require.NoError(t, f.ToggleSymptom("Mood Changes", true))
	assert.Equal(t, []string{"Mood Changes", "Memory Loss"}, f.Snapshot().Record.Symptoms)

	require.NoError(t, f.ToggleSymptom("Mood Changes", false))
	assert.Equal(t, []string{"Memory Loss"}, f.Snapshot().Record.Symptoms)

	assert.ErrorIs(t, f.ToggleSymptom("Hiccups", true), ErrUnknownSymptom)
}

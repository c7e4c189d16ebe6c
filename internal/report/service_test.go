package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/signintech/gopdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuro-ai/internal/intake"
)

type fakeTelegram struct {
	messages []string
	docs     map[string][]byte
	err      error
}

func (f *fakeTelegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeTelegram) SendDocument(ctx context.Context, chatID int64, data []byte, name string) error {
	if f.docs == nil {
		f.docs = map[string][]byte{}
	}
	f.docs[name] = data
	return f.err
}

func requireFont(t *testing.T) {
	t.Helper()
	for _, p := range FontPaths {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}
	t.Skip("DejaVuSans font not installed")
}

func finishedSnapshot() intake.Snapshot {
	return intake.Snapshot{
		ID:    "0b5e2f7c-1c7e-4d47-9d43-2f0c8e0a9b11",
		State: intake.StateResult,
		Step:  4,
		Record: intake.RecordView{
			FileName:       "scan.png",
			PatientName:    "Jane Doe",
			Age:            "71",
			HeightCm:       "180",
			WeightKg:       "75",
			BMI:            "23.15",
			BMICategory:    "Normal weight",
			Symptoms:       []string{"Memory Loss"},
			ManualSymptoms: "sleep issues",
		},
		Result: &intake.DiagnosisResult{
			Prediction:        "Very Mild Demented",
			ClassIndex:        2,
			ConfidencePercent: "91.4%",
			Advice:            "**Recommendations**: keep a regular sleep schedule and daily walks.\nFollow up.",
		},
	}
}

func TestRender_RequiresResult(t *testing.T) {
	svc := NewService(nil, 0, zap.NewNop())
	snap := finishedSnapshot()
	snap.Result = nil

	_, err := svc.Render(context.Background(), snap)
	assert.True(t, errors.Is(err, intake.ErrNoResult))
}

func TestRender_ProducesPDF(t *testing.T) {
	requireFont(t)
	svc := NewService(nil, 0, zap.NewNop())

	pdf, err := svc.Render(context.Background(), finishedSnapshot())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestSend_NotConfigured(t *testing.T) {
	assert.ErrorIs(t, NewService(nil, 42, zap.NewNop()).Send(context.Background(), finishedSnapshot()), ErrNotConfigured)
	assert.ErrorIs(t, NewService(&fakeTelegram{}, 0, zap.NewNop()).Send(context.Background(), finishedSnapshot()), ErrNotConfigured)
}

func TestSend_DeliversSummaryAndDocument(t *testing.T) {
	requireFont(t)
	tg := &fakeTelegram{}
	svc := NewService(tg, 42, zap.NewNop())
	snap := finishedSnapshot()

	require.NoError(t, svc.Send(context.Background(), snap))
	require.Len(t, tg.messages, 1)
	assert.Contains(t, tg.messages[0], "Jane Doe")
	assert.Contains(t, tg.messages[0], "Very Mild Demented")
	assert.Contains(t, tg.docs, "report_"+snap.ID+".pdf")
}

func TestSend_PropagatesTelegramError(t *testing.T) {
	requireFont(t)
	tg := &fakeTelegram{err: errors.New("blocked")}

	err := NewService(tg, 42, zap.NewNop()).Send(context.Background(), finishedSnapshot())
	assert.EqualError(t, err, "blocked")
}

func TestWriter_GapBreaksPageAtBottom(t *testing.T) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	w := &writer{pdf: pdf}

	pdf.SetY(pageBottom - 5)
	w.gap(15)

	require.NoError(t, w.err)
	assert.Equal(t, 2, pdf.GetNumberOfPages())
	assert.LessOrEqual(t, pdf.GetY(), pageBottom)

	y := pdf.GetY()
	w.gap(10)
	assert.Equal(t, 2, pdf.GetNumberOfPages())
	assert.InDelta(t, y+10, pdf.GetY(), 0.001)
}

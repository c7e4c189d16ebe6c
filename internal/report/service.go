package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"neuro-ai/internal/advice"
	"neuro-ai/internal/intake"
)

// ErrNotConfigured is returned by Send when no bot token or doctor chat is set.
var ErrNotConfigured = errors.New("telegram delivery is not configured")

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// FontPaths are probed in order for a TTF font; DejaVuSans covers non-Latin names.
var FontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily = "DejaVu"
	pageBottom = 790.0
	textWidth  = 500.0
)

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	logger       *zap.Logger
	now          func() time.Time
}

// NewService builds the report service. tg may be nil when delivery is disabled.
func NewService(tg TelegramClient, doctorChatID int64, logger *zap.Logger) *Service {
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		logger:       logger,
		now:          time.Now,
	}
}

// Render draws the PDF report of a session that has a result.
func (s *Service) Render(ctx context.Context, snap intake.Snapshot) ([]byte, error) {
	if snap.Result == nil {
		return nil, intake.ErrNoResult
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := loadFont(&pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: &pdf}
	w.font(20)
	w.line("Neuro AI - MRI Analysis Report", 30)

	w.font(12)
	w.line(fmt.Sprintf("Date: %s", s.now().Format("02.01.2006 15:04")), 15)
	w.line(fmt.Sprintf("Session: %s", snap.ID), 15)
	w.line(fmt.Sprintf("Patient: %s", snap.Record.PatientName), 15)
	w.line(fmt.Sprintf("Age: %s", snap.Record.Age), 15)
	bmi := snap.Record.BMI
	if snap.Record.BMICategory != "" {
		bmi = fmt.Sprintf("%s (%s)", bmi, snap.Record.BMICategory)
	}
	w.line(fmt.Sprintf("Height: %s cm   Weight: %s kg   BMI: %s", snap.Record.HeightCm, snap.Record.WeightKg, bmi), 15)
	if snap.Record.FileName != "" {
		w.line(fmt.Sprintf("MRI image: %s", snap.Record.FileName), 15)
	}
	w.gap(10)

	w.font(14)
	w.line("Symptoms:", 15)
	w.font(11)
	symptoms := append([]string{}, snap.Record.Symptoms...)
	if manual := strings.TrimSpace(snap.Record.ManualSymptoms); manual != "" {
		symptoms = append(symptoms, manual)
	}
	if len(symptoms) == 0 {
		w.line("- None reported.", 12)
	}
	for _, sym := range symptoms {
		w.wrapped("- "+sym, 12)
	}
	w.gap(15)

	w.font(14)
	w.line("Diagnosis:", 15)
	w.font(12)
	w.line(fmt.Sprintf("%s (class %d)", snap.Result.Prediction, snap.Result.ClassIndex), 15)
	w.line(fmt.Sprintf("Confidence: %s", advice.ConfidenceWidth(snap.Result.ConfidencePercent)), 15)
	w.gap(10)

	if lines := advice.Format(snap.Result.Advice); len(lines) > 0 {
		w.font(14)
		w.line("AI Recommendations:", 15)
		for _, l := range lines {
			if l.Heading {
				w.font(12)
				w.wrapped(l.Text, 14)
			} else {
				w.font(11)
				w.wrapped(l.Text, 12)
			}
			w.gap(4)
		}
	}

	if w.err != nil {
		return nil, fmt.Errorf("failed to draw PDF: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Send renders the report and delivers it with a short summary to the doctor chat.
func (s *Service) Send(ctx context.Context, snap intake.Snapshot) error {
	if s.tgClient == nil || s.doctorChatID == 0 {
		return ErrNotConfigured
	}

	s.logger.Info("generating PDF report", zap.String("session_id", snap.ID))
	pdf, err := s.Render(ctx, snap)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("New MRI analysis for %s: %s (%s)",
		snap.Record.PatientName, snap.Result.Prediction, snap.Result.ConfidencePercent)
	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, summary); err != nil {
		s.logger.Error("error sending telegram message", zap.Error(err))
		return err
	}

	fileName := fmt.Sprintf("report_%s.pdf", snap.ID)
	if err := s.tgClient.SendDocument(ctx, s.doctorChatID, pdf, fileName); err != nil {
		s.logger.Error("error sending telegram document", zap.Error(err))
		return err
	}
	s.logger.Info("PDF report sent", zap.String("session_id", snap.ID), zap.Int64("chat_id", s.doctorChatID))
	return nil
}

func loadFont(pdf *gopdf.GoPdf) error {
	var fontErr error
	for _, path := range FontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err == nil {
			return nil
		} else {
			fontErr = err
		}
	}
	return fmt.Errorf("failed to load font for PDF, install ttf-dejavu: %w", fontErr)
}

// writer keeps the first drawing error and starts a new page near the bottom.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) font(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(fontFamily, "", size)
	}
}

func (w *writer) line(text string, height float64) {
	if w.err != nil {
		return
	}
	w.breakPage(height)
	w.err = w.pdf.Cell(nil, text)
	w.pdf.Br(height)
}

// breakPage adds a page when height no longer fits above the bottom margin.
func (w *writer) breakPage(height float64) bool {
	if w.pdf.GetY()+height > pageBottom {
		w.pdf.AddPage()
		return true
	}
	return false
}

func (w *writer) wrapped(text string, height float64) {
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(text, textWidth)
	if err != nil {
		w.err = err
		return
	}
	for _, l := range lines {
		w.line(l, height)
	}
}

// gap is vertical space; it is dropped at the top of a fresh page.
func (w *writer) gap(height float64) {
	if w.err != nil || w.breakPage(height) {
		return
	}
	w.pdf.Br(height)
}

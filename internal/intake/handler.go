package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"neuro-ai/internal/advice"
)

// Reporter renders and delivers the doctor report of a finished session.
type Reporter interface {
	Render(ctx context.Context, snap Snapshot) ([]byte, error)
	Send(ctx context.Context, snap Snapshot) error
}

type Handler struct {
	svc            Service
	reporter       Reporter
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandler(svc Service, reporter Reporter, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, reporter: reporter, maxUploadBytes: maxUploadBytes, logger: logger}
}

// SessionView is the JSON shape of a session: the snapshot plus display helpers.
type SessionView struct {
	Snapshot
	SymptomOptions  []string      `json:"symptom_options"`
	Advice          []advice.Line `json:"advice,omitempty"`
	Tone            string        `json:"tone,omitempty"`
	ConfidenceWidth string        `json:"confidence_width,omitempty"`
}

func NewSessionView(s Snapshot) SessionView {
	v := SessionView{Snapshot: s, SymptomOptions: Symptoms}
	if s.Result != nil {
		v.Advice = advice.Format(s.Result.Advice)
		v.Tone = advice.Tone(s.Result.Prediction)
		v.ConfidenceWidth = advice.ConfidenceWidth(s.Result.ConfidencePercent)
	}
	return v
}

type FieldsRequest struct {
	PatientName    *string `json:"patient_name"`
	Age            *string `json:"age"`
	HeightCm       *string `json:"height_cm"`
	WeightKg       *string `json:"weight_kg"`
	ManualSymptoms *string `json:"manual_symptoms"`
}

type SymptomRequest struct {
	Symptom string `json:"symptom"`
	Checked bool   `json:"checked"`
}

type DragRequest struct {
	Event string `json:"event"`
}

// StreamEvent is one server-sent event of a submission.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.CreateSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create intake session")
		return
	}
	writeJSON(w, http.StatusCreated, NewSessionView(f.Snapshot()))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

func (h *Handler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}
	if err := h.svc.DiscardSession(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	var req FieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	updates := []struct {
		v   *string
		set func(string) error
	}{
		{req.PatientName, f.SetPatientName},
		{req.Age, f.SetAge},
		{req.HeightCm, f.SetHeight},
		{req.WeightKg, f.SetWeight},
		{req.ManualSymptoms, f.SetManualSymptoms},
	}
	for _, u := range updates {
		if u.v == nil {
			continue
		}
		if err := u.set(*u.v); err != nil {
			h.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

func (h *Handler) ToggleSymptom(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	var req SymptomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := f.ToggleSymptom(req.Symptom, req.Checked); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

func (h *Handler) Drag(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	var req DragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	switch req.Event {
	case "enter":
		f.DragEnter()
	case "over":
		f.DragOver()
	case "leave":
		f.DragLeave()
	default:
		writeError(w, http.StatusBadRequest, "Unknown drag event")
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error retrieving image file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read image file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	upload := &UploadedFile{Name: header.Filename, ContentType: contentType, Data: data}

	if r.FormValue("source") == "drop" {
		err = f.AcceptDrop(upload)
	} else {
		err = f.AcceptPick(upload)
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	h.logger.Info("image selected for analysis",
		zap.String("session_id", f.ID().String()),
		zap.String("file_name", header.Filename),
		zap.Int("bytes", len(data)),
	)
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	ref := f.Snapshot().PreviewRef
	file, found := h.svc.Preview(r.Context(), ref)
	if ref == "" || !found {
		writeError(w, http.StatusNotFound, "No image uploaded")
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(file.Data)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Flow).Next)
}

func (h *Handler) Prev(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Flow).Prev)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Flow).Reset)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(*Flow) error) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := fn(f); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(f.Snapshot()))
}

// Submit runs the submission and streams status messages, then the result or error.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	if state := f.State(); state != StateReview {
		if state == StateSubmitting {
			h.fail(w, ErrSubmissionInFlight)
		} else {
			h.fail(w, ErrInvalidTransition)
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := make(chan StreamEvent, 8)

	go func() {
		defer close(eventChan)
		_, err := f.Submit(r.Context(), func(msg string) {
			select {
			case eventChan <- StreamEvent{Type: "status", Data: msg}:
			default:
			}
		})
		if err != nil {
			h.logger.Warn("submission failed", zap.String("session_id", f.ID().String()), zap.Error(err))
			eventChan <- StreamEvent{Type: "error", Data: err.Error()}
			return
		}
		eventChan <- StreamEvent{Type: "result", Data: NewSessionView(f.Snapshot())}
	}()

	for event := range eventChan {
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *Handler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	snap := f.Snapshot()
	if snap.Result == nil {
		h.fail(w, ErrNoResult)
		return
	}
	pdf, err := h.reporter.Render(r.Context(), snap)
	if err != nil {
		h.logger.Error("report rendering failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.pdf"`, snap.ID))
	w.Write(pdf)
}

func (h *Handler) SendReport(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	snap := f.Snapshot()
	if snap.Result == nil {
		h.fail(w, ErrNoResult)
		return
	}
	if err := h.reporter.Send(r.Context(), snap); err != nil {
		h.logger.Error("report delivery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Report delivery failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) flow(w http.ResponseWriter, r *http.Request) (*Flow, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return nil, false
	}
	f, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return f, true
}

// fail maps intake errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   ve.Error(),
			"missing": ve.Missing,
		})
	case errors.Is(err, ErrNotImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoResult):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrRecordFrozen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownSymptom), errors.Is(err, ErrNoFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("intake request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/intake", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DiscardSession)
			r.Patch("/fields", h.UpdateFields)
			r.Put("/symptoms", h.ToggleSymptom)
			r.Post("/drag", h.Drag)
			r.Post("/upload", h.Upload)
			r.Get("/preview", h.Preview)
			r.Post("/next", h.Next)
			r.Post("/prev", h.Prev)
			r.Post("/reset", h.Reset)
			r.Post("/submit", h.Submit)
			r.Get("/report.pdf", h.ReportPDF)
			r.Post("/report/send", h.SendReport)
		})
	})
}

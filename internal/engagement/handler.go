package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

type Handler struct {
	presence  *Presence
	feedback  *FeedbackService
	dashboard *Dashboard
	logger    *zap.Logger
}

func NewHandler(presence *Presence, feedback *FeedbackService, dashboard *Dashboard, logger *zap.Logger) *Handler {
	return &Handler{presence: presence, feedback: feedback, dashboard: dashboard, logger: logger}
}

type PresenceRequest struct {
	// IP overrides the address seen by the server, e.g. from a client-side lookup.
	IP string `json:"ip"`
}

type FeedbackRequest struct {
	FeedbackType FeedbackType `json:"feedback_type"`
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.presenceCall(w, r, h.presence.Heartbeat)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	h.presenceCall(w, r, h.presence.Leave)
}

func (h *Handler) presenceCall(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, sess SessionContext, ip string) error) {
	sess, err := SessionFromRequest(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	var req PresenceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	}
	ip := req.IP
	if ip == "" {
		ip = clientIP(r)
	}

	if err := call(r.Context(), sess, ip); err != nil {
		// Presence is best effort; the page keeps working.
		h.logger.Error("error updating visitor status", zap.Error(err))
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"visitor_id": sess.VisitorID(ip), "stored": false})
		return
	}
	h.dashboard.Kick(changefeed.TopicVisitors)
	writeJSON(w, http.StatusOK, map[string]interface{}{"visitor_id": sess.VisitorID(ip), "stored": true})
}

func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"online_visitors": h.dashboard.Counter.Count()})
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := h.feedback.Submit(r.Context(), req.FeedbackType); err != nil {
		h.fail(w, err, "Failed to submit feedback")
		return
	}
	h.dashboard.Kick(changefeed.TopicFeedback)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Thank you for your feedback!"})
}

func (h *Handler) SubmitDetailed(w http.ResponseWriter, r *http.Request) {
	var req DetailedFeedback
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	t, err := h.feedback.SubmitDetailed(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to submit feedback")
		return
	}
	h.dashboard.Kick(changefeed.TopicDetailedFeedback)
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Analytics.Analytics())
}

type testimonialView struct {
	Testimonial
	Initial string `json:"initial"`
}

func (h *Handler) Testimonials(w http.ResponseWriter, r *http.Request) {
	list := h.dashboard.Testimonials.List()
	out := make([]testimonialView, 0, len(list))
	for _, t := range list {
		out = append(out, testimonialView{Testimonial: t, Initial: t.Initial()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := ExportXLSX(h.dashboard.Analytics.Analytics(), h.dashboard.Testimonials.List())
	if err != nil {
		h.logger.Error("feedback export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export feedback")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="feedback.xlsx"`)
	w.Write(data)
}

// Stream sends the current dashboard snapshot and then one per refresh.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := h.dashboard.Watch(r.Context())
	send := func(s Snapshot) {
		data, _ := json.Marshal(s)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(h.dashboard.Snapshot())
	for s := range updates {
		send(s)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	var ie *IncompleteError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": ie.Error(), "missing": ie.Missing})
	case errors.Is(err, ErrInvalidFeedbackType), errors.Is(err, ErrInvalidRating):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("error submitting feedback", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
	r.Route("/visitors", func(r chi.Router) {
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/leave", h.Leave)
		r.Get("/online", h.Online)
	})
	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", h.SubmitFeedback)
		r.Post("/detailed", h.SubmitDetailed)
		r.Get("/analytics", h.Analytics)
		r.Get("/export.xlsx", h.Export)
	})
	r.Get("/testimonials", h.Testimonials)
	r.Get("/engagement/stream", h.Stream)
}

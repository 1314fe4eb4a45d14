package api

import (
	"bytes"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/keyscan/internal/index"
	"github.com/starford/keyscan/internal/keyservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *keyservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *keyservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Octave handles GET /api/octave.
//
//	@Summary		Get the current calibration and key states
//	@Tags			octave
//	@Produce		json
//	@Success		200	{object}	OctaveResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/octave [get]
func (h *Handler) Octave(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Octave(r.Context())
	if err != nil {
		writeServiceError(w, "octave", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Calibrate handles POST /api/calibrate.
//
//	@Summary		Calibrate the octave from a stored frame
//	@Tags			octave
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CalibrateRequest	true	"Calibration frame and optional anchor"
//	@Success		201		{object}	OctaveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calibrate [post]
func (h *Handler) Calibrate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Frame == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("frame is required"))
		return
	}
	if (req.AnchorX == nil) != (req.AnchorY == nil) {
		writeJSON(w, http.StatusBadRequest, errorBody("anchor_x and anchor_y must be set together"))
		return
	}
	var anchor *image.Point
	if req.AnchorX != nil {
		anchor = &image.Point{X: *req.AnchorX, Y: *req.AnchorY}
	}

	view, err := h.svc.Calibrate(r.Context(), req.Frame, anchor)
	if err != nil {
		writeServiceError(w, "calibrate", err, slog.String("frame", req.Frame))
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListFrames handles GET /api/frames.
//
//	@Summary		List frames on disk
//	@Tags			frames
//	@Produce		json
//	@Success		200	{object}	FrameListResponse
//	@Security		BearerAuth
//	@Router			/frames [get]
func (h *Handler) ListFrames(w http.ResponseWriter, r *http.Request) {
	metas, err := h.svc.ListFrames(r.Context())
	if err != nil {
		writeServiceError(w, "list frames", err)
		return
	}
	writeJSON(w, http.StatusOK, FrameListResponse{Frames: metas, Total: len(metas)})
}

// ProcessFrame handles POST /api/frames/{name}/process.
//
//	@Summary		Sample a stored frame against the calibrated octave
//	@Tags			frames
//	@Produce		json
//	@Param			name	path		string	true	"Frame name"
//	@Success		200		{object}	FrameResult
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/frames/{name}/process [post]
func (h *Handler) ProcessFrame(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.svc.ProcessFrame(r.Context(), name)
	if err != nil {
		writeServiceError(w, "process frame", err, slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteFrame handles DELETE /api/frames/{name}.
//
//	@Summary		Delete a frame
//	@Tags			frames
//	@Param			name	path	string	true	"Frame name"
//	@Success		204		"Frame deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/frames/{name} [delete]
func (h *Handler) DeleteFrame(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.DeleteFrame(r.Context(), name); err != nil {
		writeServiceError(w, "delete frame", err, slog.String("name", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/history.
//
//	@Summary		List recorded key transitions, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			code	query		int		false	"Filter by absolute note code"
//	@Param			frame	query		string	false	"Filter by frame name"
//	@Success		200		{object}	HistoryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := index.EventFilter{Frame: q.Get("frame"), Limit: limit, Offset: offset}
	if raw := q.Get("code"); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("code must be an integer"))
			return
		}
		filter.Code = &code
	}

	events, total, err := h.svc.Events(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: events, Total: total})
}

// Recording handles GET /api/recording.mid.
//
//	@Summary		Download the session as a Standard MIDI File
//	@Tags			history
//	@Produce		audio/midi
//	@Success		200	{file}	binary
//	@Security		BearerAuth
//	@Router			/recording.mid [get]
func (h *Handler) Recording(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.svc.WriteRecording(&buf); err != nil {
		writeServiceError(w, "recording", err)
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="recording.mid"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

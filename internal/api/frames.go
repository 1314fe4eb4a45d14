package api

import (
	"io"
	"log/slog"
	"net/http"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadFrame handles POST /api/frames (multipart/form-data, field "file").
//
//	@Summary		Upload a captured frame and process it
//	@Tags			frames
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"PNG, JPEG or GIF frame"
//	@Success		201		{object}	FrameResult
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/frames [post]
func (h *Handler) UploadFrame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	res, err := h.svc.SubmitFrame(r.Context(), header.Filename, data)
	if err != nil {
		writeServiceError(w, "upload frame", err, slog.String("name", header.Filename))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

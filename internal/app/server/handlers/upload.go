package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"whisper/internal/core/domain"
	"whisper/internal/core/services"
	"whisper/pkg/logging"
	"whisper/pkg/middleware"
)

// multipartOverhead is the form budget above the file size cap.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	log      *slog.Logger
	uploads  *services.UploadService
	maxBytes int64
}

func NewUploadHandler(log *slog.Logger, uploads *services.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{log: log, uploads: uploads, maxBytes: maxBytes}
}

// GroupFile handles POST /api/v1/groups/{group_id}/files.
func (h *UploadHandler) GroupFile(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "group_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}
	req, err := h.decode(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msg, err := h.uploads.UploadGroupFile(r.Context(), groupID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewGroupMessageEvent(msg, req.TempID))
}

// ReplaceGroupFile handles PUT /api/v1/groups/messages/{message_id}/file.
func (h *UploadHandler) ReplaceGroupFile(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseInt(chi.URLParam(r, "message_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	req, err := h.decode(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msg, err := h.uploads.ReplaceGroupFile(r.Context(), messageID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewGroupMessageEvent(msg, req.TempID))
}

// PrivateFile handles POST /api/v1/private/{friend_id}/files.
func (h *UploadHandler) PrivateFile(w http.ResponseWriter, r *http.Request) {
	friendID, err := strconv.ParseInt(chi.URLParam(r, "friend_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid friend id", http.StatusBadRequest)
		return
	}
	req, err := h.decode(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msg, err := h.uploads.UploadPrivateFile(r.Context(), friendID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewPrivateMessageEvent(msg, req.TempID))
}

// decode reads the multipart form into an UploadRequest. Files over the cap
// are cut at cap+1 bytes so the service reports them as too large.
func (h *UploadHandler) decode(w http.ResponseWriter, r *http.Request) (services.UploadRequest, error) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		return services.UploadRequest{}, domain.Reject(domain.CodeForbidden, domain.ErrInvalidToken)
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		return services.UploadRequest{}, domain.Rejectf(domain.CodeInvalidFrame, "invalid multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return services.UploadRequest{}, domain.Rejectf(domain.CodeInvalidFrame, "file field is required")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return services.UploadRequest{}, fmt.Errorf("read upload: %w", err)
	}

	req := services.UploadRequest{
		User:     *user,
		Filename: header.Filename,
		Data:     data,
		TempID:   r.FormValue("temp_id"),
		Caption:  r.FormValue("content"),
	}
	if v := r.FormValue("reply_to_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return services.UploadRequest{}, domain.Rejectf(domain.CodeInvalidFrame, "reply_to_id must be a positive integer")
		}
		req.ReplyToID = &id
	}
	if v := r.FormValue("voice_duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return services.UploadRequest{}, domain.Rejectf(domain.CodeInvalidFrame, "voice_duration must be a non-negative number")
		}
		req.VoiceDuration = &d
	}
	logging.FromContext(r.Context(), h.log).DebugContext(r.Context(), "upload handler - decode - form parsed",
		logging.User(user.ID), slog.String("filename", header.Filename), slog.Int("bytes", len(data)))
	return req, nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/server/models"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
)

type handler struct {
	notes  *services.NoteService
	images *services.ImageService
	secret []byte
	log    logging.Logger
}

// wireNote is the JSON shape a note takes on the wire.
type wireNote struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	KeyID           string    `json:"keyId"`
	Ciphertext      []byte    `json:"ciphertext"`
	Nonce           []byte    `json:"nonce"`
	Version         int       `json:"version"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Revision        int64     `json:"revision"`
	ServerUpdatedAt time.Time `json:"serverUpdatedAt"`
	Deleted         bool      `json:"deleted"`
}

type pushRequest struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	KeyID            string `json:"keyId"`
	Ciphertext       []byte `json:"ciphertext"`
	Nonce            []byte `json:"nonce"`
	Version          int    `json:"version"`
	UpdatedAt        string `json:"updatedAt"`
	ExpectedRevision int64  `json:"expectedRevision"`
}

type deleteRequest struct {
	ID   string `json:"id"`
	Date string `json:"date"`
}

type presignRequest struct {
	ImageID string `json:"imageId"`
}

func toWire(n *models.Note) wireNote {
	return wireNote{
		ID:              n.ID,
		Date:            n.Date,
		KeyID:           n.KeyID,
		Ciphertext:      n.Ciphertext,
		Nonce:           n.Nonce,
		Version:         n.Version,
		UpdatedAt:       n.UpdatedAt,
		Revision:        n.Revision,
		ServerUpdatedAt: n.ServerUpdatedAt,
		Deleted:         n.Deleted,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, common.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrInvalidDate),
		errors.Is(err, common.ErrRemoteRejected):
		status = http.StatusBadRequest
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getNote(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	n, err := h.notes.GetByDate(r.Context(), userID(r.Context()), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if n == nil {
		h.writeError(w, r, common.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toWire(n))
}

func (h *handler) getDates(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, common.ErrRemoteRejected)
			return
		}
		year = parsed
	}

	dates, err := h.notes.Dates(r.Context(), userID(r.Context()), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (h *handler) getChanges(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	rows, cursor, err := h.notes.ChangesSince(r.Context(), userID(r.Context()), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	notes := make([]wireNote, 0, len(rows))
	for _, n := range rows {
		notes = append(notes, toWire(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "cursor": cursor})
}

func (h *handler) pushNote(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.ErrRemoteRejected)
		return
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, req.UpdatedAt)
	if err != nil {
		h.writeError(w, r, common.ErrRemoteRejected)
		return
	}

	n, err := h.notes.Push(r.Context(), userID(r.Context()), &services.PushInput{
		Date:             req.Date,
		KeyID:            req.KeyID,
		Ciphertext:       req.Ciphertext,
		Nonce:            req.Nonce,
		Version:          req.Version,
		UpdatedAt:        updatedAt,
		ExpectedRevision: req.ExpectedRevision,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWire(n))
}

func (h *handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.ErrRemoteRejected)
		return
	}

	if err := h.notes.Delete(r.Context(), userID(r.Context()), req.ID, req.Date); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) presignPut(w http.ResponseWriter, r *http.Request) {
	h.presign(w, r, h.images.GetPresignedPutURL)
}

func (h *handler) presignGet(w http.ResponseWriter, r *http.Request) {
	h.presign(w, r, h.images.GetPresignedGetURL)
}

func (h *handler) presign(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, userID, imageID string) (string, error)) {

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.ErrRemoteRejected)
		return
	}

	url, err := fn(r.Context(), userID(r.Context()), req.ImageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

package transcript

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/service/session"
	"github.com/soulbot/soulbot/backend/pkg/utils"
)

// Handler exposes live sessions and their transcripts.
type Handler struct {
	sessions *session.Registry
	logger   logrus.FieldLogger
}

// New creates a transcript handler over the session registry.
func New(sessions *session.Registry, logger logrus.FieldLogger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}/transcript", h.handleTranscript)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.sessions.List())
}

type transcriptResponse struct {
	SessionID string        `json:"sessionId"`
	State     chat.State    `json:"state"`
	Records   []chat.Record `json:"records"`
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	coord, err := h.sessions.Get(sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, transcriptResponse{
		SessionID: sessionID,
		State:     coord.State(),
		Records:   conversationRecords(coord.Snapshot()),
	})
}

// conversationRecords drops the system turn, which carries the profile details.
func conversationRecords(snap chat.Snapshot) []chat.Record {
	records := make([]chat.Record, 0, len(snap.Turns))
	for _, r := range snap.Records() {
		if r.Role == chat.RoleSystem {
			continue
		}
		records = append(records, r)
	}
	return records
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	if err := utils.RespondJSON(w, status, payload); err != nil {
		h.logger.WithError(err).Warn("write response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	if err := utils.RespondError(w, status, message); err != nil {
		h.logger.WithError(err).Warn("write error response")
	}
}

package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
	"github.com/soulbot/soulbot/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Service recognises and synthesizes speech.
type Service interface {
	Enabled() bool
	Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.Transcription, error)
	Synthesize(ctx context.Context, req speech.SynthesizeRequest) (*speech.Audio, error)
}

// Handler serves one-shot ASR and TTS requests outside of a live session.
type Handler struct {
	speechSvc Service
	logger    logrus.FieldLogger
}

// New creates the speech handler.
func New(speechSvc Service, logger logrus.FieldLogger) *Handler {
	return &Handler{speechSvc: speechSvc, logger: logger}
}

// RegisterRoutes mounts /speech routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Use(h.requireEnabled)
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
}

func (h *Handler) requireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.speechSvc == nil || !h.speechSvc.Enabled() {
			h.respondError(w, http.StatusServiceUnavailable, "speech service not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = "default"
	}

	resp, err := h.speechSvc.Transcribe(r.Context(), speech.TranscribeRequest{
		SessionID: sessionID,
		Audio:     audio,
		Format:    inferAudioFormat(header.Filename),
		Language:  r.FormValue("language"),
	})
	if err != nil {
		h.logger.WithError(err).WithField("session", sessionID).Error("asr failed")
		h.respondError(w, http.StatusInternalServerError, "speech recognition failed")
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type synthesizePayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	Format    string `json:"format"`
	Language  string `json:"language"`
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), speech.SynthesizeRequest{
		SessionID: req.SessionID,
		Text:      req.Text,
		Voice:     req.Voice,
		Format:    req.Format,
		Language:  req.Language,
	})
	if err != nil {
		h.logger.WithError(err).WithField("session", req.SessionID).Error("tts failed")
		h.respondError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	if len(resp.Data) == 0 {
		h.respondJSON(w, http.StatusOK, resp)
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Data); err != nil {
		h.logger.WithError(err).Warn("write audio response")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}

func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".pcm", ".ogg":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
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

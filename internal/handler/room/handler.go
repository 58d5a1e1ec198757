package room

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/model/speech"
	"github.com/soulbot/soulbot/backend/internal/service/ai"
	"github.com/soulbot/soulbot/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second

	defaultLanguage = "en-US"
)

// clientFunctions are the session functions a participant may invoke directly.
// Everything else is reserved for the model.
var clientFunctions = map[string]bool{
	ai.FunctionDescribeImage: true,
}

// SpeechService recognises and synthesizes speech for the room.
type SpeechService interface {
	Enabled() bool
	Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.Transcription, error)
	Synthesize(ctx context.Context, req speech.SynthesizeRequest) (*speech.Audio, error)
}

// SessionFactory builds the coordinator for a freshly connected participant.
type SessionFactory func(id string, transport session.Transport) (*session.Coordinator, error)

// Handler upgrades participants to websockets and binds each one to a session.
type Handler struct {
	sessions   *session.Registry
	newSession SessionFactory
	speech     SpeechService
	logger     logrus.FieldLogger
	upgrader   websocket.Upgrader
}

// New creates the room handler. speechSvc may be nil.
func New(sessions *session.Registry, factory SessionFactory, speechSvc SpeechService, logger logrus.FieldLogger) *Handler {
	return &Handler{
		sessions:   sessions,
		newSession: factory,
		speech:     speechSvc,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type participant struct {
	conn  *connection
	coord *session.Coordinator
	audio bytes.Buffer
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	sessionID := uuid.NewString()
	logger := h.logger.WithField("session", sessionID)
	conn := newConnection(ws, sessionID, h.speech, defaultLanguage, logger)

	coord, err := h.newSession(sessionID, conn)
	if err != nil {
		logger.WithError(err).Error("create session failed")
		conn.sendError("session unavailable")
		return
	}
	h.sessions.Add(coord)
	defer h.sessions.Remove(sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger.Info("participant connected")
	_ = conn.sendInfo(map[string]any{"type": "connected", "language": defaultLanguage})

	if err := coord.Open(ctx); err != nil {
		logger.WithError(err).Error("open session failed")
		conn.sendError("session unavailable")
		coord.Shutdown()
		return
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		coord.Run(ctx)
		// Unblocks the read loop when the session ends on its own.
		_ = ws.Close()
	}()
	go h.pingLoop(ctx, ws)

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	p := &participant{conn: conn, coord: coord}
	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Info("participant disconnected")
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, p, &msg)
	}

	cancel()
	<-runDone
	logger.WithField("state", coord.State()).Info("room closed")
}

func (h *Handler) handleMessage(ctx context.Context, p *participant, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		h.handleText(ctx, p, msg.Data)
	case "audio":
		h.handleAudio(ctx, p, msg.Data)
	case "image":
		h.handleImage(p, msg.Data)
	case "function":
		h.handleFunction(ctx, p, msg.Data)
	case "config":
		h.handleConfig(p, msg.Data)
	default:
		p.conn.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) handleText(ctx context.Context, p *participant, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		p.conn.sendError("invalid text payload")
		return
	}
	if text.Text == "" {
		return
	}

	_ = p.conn.sendInfo(map[string]any{"type": "user", "text": text.Text})
	h.enqueue(ctx, p, session.TextEvent{Text: text.Text, WithImage: text.UseImage})
}

func (h *Handler) handleAudio(ctx context.Context, p *participant, raw json.RawMessage) {
	if h.speech == nil || !h.speech.Enabled() {
		_ = p.conn.sendInfo(map[string]any{"type": "asr", "enabled": false})
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		p.conn.sendError("invalid audio payload")
		return
	}

	p.audio.Write(audio.AudioData)
	p.conn.mu.Lock()
	if audio.Format != "" {
		p.conn.audioFormat = audio.Format
	}
	if audio.Language != "" {
		p.conn.language = audio.Language
	}
	format, language := p.conn.audioFormat, p.conn.language
	p.conn.mu.Unlock()

	if !audio.IsFinal {
		return
	}

	data := append([]byte(nil), p.audio.Bytes()...)
	p.audio.Reset()
	if len(data) == 0 {
		return
	}
	if format == "" {
		format = "wav"
	}

	result, err := h.speech.Transcribe(ctx, speech.TranscribeRequest{
		SessionID: p.coord.ID(),
		Audio:     data,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		p.conn.sendError(fmt.Sprintf("ASR failed: %v", err))
		return
	}

	_ = p.conn.sendInfo(map[string]any{"type": "asr", "text": result.Text, "isFinal": true})
	if result.Text == "" {
		return
	}
	h.enqueue(ctx, p, session.TranscriptionEvent{Text: result.Text})
}

func (h *Handler) handleImage(p *participant, raw json.RawMessage) {
	var img ImageMessage
	if err := json.Unmarshal(raw, &img); err != nil || len(img.Data) == 0 {
		p.conn.sendError("invalid image payload")
		return
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	p.coord.ObserveImage(chat.ImageRef{ID: uuid.NewString(), MIMEType: mime, Data: img.Data})
}

func (h *Handler) handleFunction(ctx context.Context, p *participant, raw json.RawMessage) {
	var fn FunctionMessage
	if err := json.Unmarshal(raw, &fn); err != nil || fn.Name == "" {
		p.conn.sendError("invalid function payload")
		return
	}
	if !clientFunctions[fn.Name] {
		p.conn.logger.WithField("function", fn.Name).Warn("client function call refused")
		p.conn.sendError("function not allowed: " + fn.Name)
		return
	}
	h.enqueue(ctx, p, session.FunctionResultEvent{Name: fn.Name, Arguments: fn.Arguments})
}

func (h *Handler) handleConfig(p *participant, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		p.conn.sendError("invalid config payload")
		return
	}
	_ = p.conn.sendInfo(p.conn.applyConfig(cfg))
}

func (h *Handler) enqueue(ctx context.Context, p *participant, ev session.Event) {
	err := p.coord.Enqueue(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionClosed):
		p.conn.sendError("session closed")
	default:
		p.conn.sendError(err.Error())
	}
}

func (h *Handler) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

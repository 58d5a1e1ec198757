package room

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
	"github.com/soulbot/soulbot/backend/internal/service/session"
)

const writeWait = 10 * time.Second

// connection serialises writes to one websocket and carries its speech settings.
// It is the session.Transport of the coordinator bound to the socket.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	speech    SpeechService
	logger    logrus.FieldLogger

	writeMu sync.Mutex

	mu          sync.Mutex
	language    string
	voice       string
	ttsEnabled  bool
	audioFormat string
	closed      bool
}

func newConnection(conn *websocket.Conn, sessionID string, speechSvc SpeechService, language string, logger logrus.FieldLogger) *connection {
	return &connection{
		conn:       conn,
		sessionID:  sessionID,
		speech:     speechSvc,
		logger:     logger,
		language:   language,
		ttsEnabled: speechSvc != nil && speechSvc.Enabled(),
	}
}

// SendReply delivers the assistant text, followed by synthesized audio when enabled.
func (c *connection) SendReply(ctx context.Context, reply session.Reply) error {
	if err := c.sendInfo(map[string]any{
		"type":               "reply",
		"text":               reply.Text,
		"allowInterruptions": reply.AllowInterruptions,
	}); err != nil {
		return err
	}

	language, voice, tts := c.speechSettings()
	if !tts || reply.Text == "" {
		return nil
	}

	audio, err := c.speech.Synthesize(ctx, speech.SynthesizeRequest{
		SessionID: c.sessionID,
		Text:      reply.Text,
		Voice:     voice,
		Language:  language,
	})
	if err != nil {
		c.logger.WithError(err).Warn("tts failed")
		return c.sendInfo(map[string]any{"type": "tts", "error": "synthesis failed"})
	}
	if len(audio.Data) == 0 {
		c.logger.Warn("tts returned empty audio")
		return nil
	}

	return c.sendInfo(map[string]any{
		"type":      "tts",
		"audioData": base64.StdEncoding.EncodeToString(audio.Data),
		"format":    audio.Format,
		"isFinal":   true,
	})
}

// Disconnect sends a normal close frame and closes the socket. Later calls do nothing.
func (c *connection) Disconnect(context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

func (c *connection) sendInfo(data map[string]any) error {
	return c.write(outgoingMessage{
		Type:      "result",
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *connection) sendError(message string) {
	err := c.write(outgoingMessage{
		Type:      "error",
		SessionID: c.sessionID,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.logger.WithError(err).Debug("write error message failed")
	}
}

func (c *connection) write(msg outgoingMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *connection) speechSettings() (language, voice string, tts bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language, c.voice, c.ttsEnabled
}

func (c *connection) applyConfig(cfg ConfigMessage) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.Language != "" {
		c.language = cfg.Language
	}
	if cfg.Voice != "" {
		c.voice = cfg.Voice
	}
	if cfg.TTSEnabled != nil {
		c.ttsEnabled = *cfg.TTSEnabled && c.speech != nil && c.speech.Enabled()
	}
	return map[string]any{
		"type":     "config",
		"language": c.language,
		"voice":    c.voice,
		"tts":      c.ttsEnabled,
	}
}

package room

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/model/profile"
	"github.com/soulbot/soulbot/backend/internal/model/speech"
	"github.com/soulbot/soulbot/backend/internal/service/ai"
	"github.com/soulbot/soulbot/backend/internal/service/export"
	"github.com/soulbot/soulbot/backend/internal/service/session"
)

type echoInference struct{}

func (echoInference) Complete(_ context.Context, turns []chat.Turn) (chat.Turn, error) {
	last := turns[len(turns)-1]
	return chat.NewTurn(chat.RoleAssistant, chat.TextPart("echo: "+last.Text())), nil
}

type fakeSpeech struct {
	mu         sync.Mutex
	transcript string
	received   []byte
}

func (f *fakeSpeech) Enabled() bool { return true }

func (f *fakeSpeech) Transcribe(_ context.Context, req speech.TranscribeRequest) (*speech.Transcription, error) {
	f.mu.Lock()
	f.received = append([]byte(nil), req.Audio...)
	f.mu.Unlock()
	return &speech.Transcription{Text: f.transcript}, nil
}

func (f *fakeSpeech) Synthesize(_ context.Context, req speech.SynthesizeRequest) (*speech.Audio, error) {
	return &speech.Audio{Data: []byte("pcm:" + req.Text), Format: "mp3"}, nil
}

type recordingSender struct {
	mu sync.Mutex
	to []string
}

func (r *recordingSender) Send(_ context.Context, to string, _ export.Document, _ string) error {
	r.mu.Lock()
	r.to = append(r.to, to)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.to...)
}

type roomFixture struct {
	server   *httptest.Server
	registry *session.Registry
	sender   *recordingSender
	dir      string
}

func newRoomFixture(t *testing.T, speechSvc SpeechService) *roomFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	registry := session.NewRegistry()
	dir := t.TempDir()
	sender := &recordingSender{}

	factory := func(id string, transport session.Transport) (*session.Coordinator, error) {
		return session.New(id, session.Deps{
			Transport: transport,
			Inference: echoInference{},
			Profiles:  profile.NewStaticLookup(&profile.Profile{Name: "Asha", ContactAddress: "asha@example.com"}),
			Delivery:  sender,
			Persister: export.NewWriter(dir),
			Logger:    logger,
		}, session.DefaultOptions())
	}

	r := chi.NewRouter()
	New(registry, factory, speechSvc, logger).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &roomFixture{server: server, registry: registry, sender: sender, dir: dir}
}

func (f *roomFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *roomFixture) artifacts(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, "conversation_*.json"))
	require.NoError(t, err)
	return matches
}

func readResult(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "result", msg.Type, "unexpected message %+v", msg)
	return msg.Data
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "data": data}))
}

func TestRoomConversationAndQuit(t *testing.T) {
	f := newRoomFixture(t, nil)
	conn := f.dial(t)

	assert.Equal(t, "connected", readResult(t, conn)["type"])
	greeting := readResult(t, conn)
	assert.Equal(t, "reply", greeting["type"])
	assert.Equal(t, session.DefaultGreeting, greeting["text"])

	send(t, conn, "text", map[string]any{"text": "hello"})
	assert.Equal(t, "hello", readResult(t, conn)["text"])
	reply := readResult(t, conn)
	assert.Equal(t, "reply", reply["type"])
	assert.Equal(t, "echo: hello", reply["text"])

	require.Len(t, f.registry.List(), 1)

	send(t, conn, "text", map[string]any{"text": "  Quit "})
	assert.Equal(t, "  Quit ", readResult(t, conn)["text"])
	farewell := readResult(t, conn)
	assert.Equal(t, session.DefaultFarewell, farewell["text"])
	assert.Equal(t, false, farewell["allowInterruptions"])

	var msg map[string]any
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	err := conn.ReadJSON(&msg)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)

	assert.Len(t, f.artifacts(t), 1)
	assert.Eventually(t, func() bool { return len(f.registry.List()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoomAbruptDisconnectPersistsTranscript(t *testing.T) {
	f := newRoomFixture(t, nil)
	conn := f.dial(t)

	readResult(t, conn)
	readResult(t, conn)
	send(t, conn, "text", map[string]any{"text": "hello"})
	readResult(t, conn)
	readResult(t, conn)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return len(f.artifacts(t)) == 1 }, 2*time.Second, 10*time.Millisecond)
	data, err := os.ReadFile(f.artifacts(t)[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo: hello")
}

func TestRoomTranscribesFinalAudioAndSpeaksReply(t *testing.T) {
	speechSvc := &fakeSpeech{transcript: "tell me my horoscope"}
	f := newRoomFixture(t, speechSvc)
	conn := f.dial(t)

	readResult(t, conn)
	readResult(t, conn)
	tts := readResult(t, conn)
	assert.Equal(t, "tts", tts["type"])

	send(t, conn, "audio", map[string]any{"audioData": []byte("abc"), "format": "pcm"})
	send(t, conn, "audio", map[string]any{"audioData": []byte("def"), "isFinal": true})

	asr := readResult(t, conn)
	assert.Equal(t, "asr", asr["type"])
	assert.Equal(t, "tell me my horoscope", asr["text"])

	reply := readResult(t, conn)
	assert.Equal(t, "echo: tell me my horoscope", reply["text"])
	assert.Equal(t, "tts", readResult(t, conn)["type"])

	speechSvc.mu.Lock()
	assert.Equal(t, []byte("abcdef"), speechSvc.received)
	speechSvc.mu.Unlock()
}

func TestRoomConfigAndUnsupportedType(t *testing.T) {
	f := newRoomFixture(t, nil)
	conn := f.dial(t)

	readResult(t, conn)
	readResult(t, conn)

	send(t, conn, "config", map[string]any{"language": "hi-IN", "voice": "calm", "ttsEnabled": true})
	cfg := readResult(t, conn)
	assert.Equal(t, "config", cfg["type"])
	assert.Equal(t, "hi-IN", cfg["language"])
	assert.Equal(t, "calm", cfg["voice"])
	assert.Equal(t, false, cfg["tts"])

	send(t, conn, "video", map[string]any{})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Data["message"], "unsupported message type")
}

func TestRoomImageIsAttachedOnRequest(t *testing.T) {
	f := newRoomFixture(t, nil)
	conn := f.dial(t)

	readResult(t, conn)
	readResult(t, conn)

	send(t, conn, "image", map[string]any{"data": []byte{0xff, 0xd8}, "mimeType": "image/jpeg"})
	send(t, conn, "text", map[string]any{"text": "what do you see", "useImage": true})
	readResult(t, conn)
	assert.Equal(t, "echo: what do you see", readResult(t, conn)["text"])

	infos := f.registry.List()
	require.Len(t, infos, 1)
	coord, err := f.registry.Get(infos[0].ID)
	require.NoError(t, err)
	require.NotNil(t, coord.LatestImage())

	snap := coord.Snapshot()
	user, ok := snap.LastByRole(chat.RoleUser)
	require.True(t, ok)
	assert.Len(t, user.Images(), 1)
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "error", msg.Type)
	return msg.Data["message"]
}

func TestRoomRefusesClientSendEmail(t *testing.T) {
	f := newRoomFixture(t, nil)
	conn := f.dial(t)

	readResult(t, conn)
	readResult(t, conn)

	send(t, conn, "function", map[string]any{
		"name":      ai.FunctionSendEmail,
		"arguments": map[string]string{"to_email": "victim@example.org", "subject": "spam", "body_content": "buy now"},
	})
	assert.Contains(t, readError(t, conn), "function not allowed")

	send(t, conn, "function", map[string]any{
		"name":      ai.FunctionDescribeImage,
		"arguments": map[string]string{"user_msg": "what is in my hand?"},
	})
	assert.Equal(t, "echo: what is in my hand?", readResult(t, conn)["text"])
	assert.Empty(t, f.sender.recipients())
}

package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame *Frame
	}{
		{name: "full client request", frame: NewFullClientRequest([]byte(`{"a":1}`), GzipCompression)},
		{name: "audio middle", frame: NewAudioRequest([]byte{1, 2, 3}, 4, false, NoCompression)},
		{name: "audio last", frame: NewAudioRequest([]byte{9}, 5, true, NoCompression)},
		{name: "session event", frame: &Frame{
			Type: FullServerResponse, Flags: WithEvent, Serialization: JSONSerialization,
			Event: EventSessionFinished, SessionID: "sess-1", Payload: []byte("{}"),
		}},
		{name: "connection event", frame: &Frame{
			Type: FullServerResponse, Flags: WithEvent, Event: EventConnectionStarted, ConnectID: "conn-7",
		}},
		{name: "error", frame: &Frame{Type: ErrorMessage, ErrorCode: 45000001, Payload: []byte("bad request")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFrame(tc.frame.Encode())
			require.NoError(t, err)

			assert.Equal(t, tc.frame.Type, got.Type)
			assert.Equal(t, tc.frame.Flags, got.Flags)
			assert.Equal(t, tc.frame.Sequence, got.Sequence)
			assert.Equal(t, tc.frame.Event, got.Event)
			assert.Equal(t, tc.frame.SessionID, got.SessionID)
			assert.Equal(t, tc.frame.ConnectID, got.ConnectID)
			assert.Equal(t, tc.frame.ErrorCode, got.ErrorCode)
			assert.Equal(t, len(tc.frame.Payload), len(got.Payload))
		})
	}
}

func TestAudioRequestLastFrameNegatesSequence(t *testing.T) {
	f := NewAudioRequest([]byte{1}, 7, true, NoCompression)
	assert.Equal(t, NegativeSequence, f.Flags)
	assert.Equal(t, int32(-7), f.Sequence)
	assert.True(t, f.Last())
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte{0x11})
	assert.ErrorIs(t, err, ErrFrame)

	_, err = DecodeFrame([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrFrame)

	truncated := NewFullClientRequest([]byte("payload"), NoCompression).Encode()
	_, err = DecodeFrame(truncated[:len(truncated)-2])
	assert.ErrorIs(t, err, ErrFrame)
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("namaste ", 64))

	packed, err := Compress(data, GzipCompression)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	unpacked, err := Decompress(packed, GzipCompression)
	require.NoError(t, err)
	assert.Equal(t, data, unpacked)

	_, err = Compress(data, Compression(7))
	assert.Error(t, err)
}

var upgrader = websocket.Upgrader{}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

func testConfig() speech.Config {
	return speech.Config{AppID: "app", AccessToken: "token", Timeout: 5 * time.Second}
}

func TestASRTranscribe(t *testing.T) {
	var (
		mu        sync.Mutex
		gotHeader http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHeader = r.Header.Clone()
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		first := readFrame(t, conn)
		assert.Equal(t, FullClientRequest, first.Type)
		payload, err := Decompress(first.Payload, first.Compression)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"model_name":"bigmodel"`)

		var audio []byte
		for {
			f := readFrame(t, conn)
			chunk, err := Decompress(f.Payload, f.Compression)
			require.NoError(t, err)
			audio = append(audio, chunk...)
			if f.Last() {
				break
			}
		}
		assert.Len(t, audio, 10000)

		body, _ := json.Marshal(map[string]any{"code": 20000000, "sequence": -3, "result": map[string]any{"text": "quit"}})
		packed, err := Compress(body, GzipCompression)
		require.NoError(t, err)
		resp := &Frame{Type: FullServerResponse, Flags: NegativeSequence, Sequence: -3, Serialization: JSONSerialization, Compression: GzipCompression, Payload: packed}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, resp.Encode()))
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	cfg := testConfig()
	cfg.ASRURL = wsURL(server)
	client := NewASRClient(cfg, logger)
	client.pacing = 0

	res, err := client.Transcribe(context.Background(), speech.TranscribeRequest{SessionID: "s1", Audio: make([]byte, 10000)})
	require.NoError(t, err)
	assert.Equal(t, "quit", res.Text)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "app", gotHeader.Get("X-Api-App-Key"))
	assert.Equal(t, asrHourResource, gotHeader.Get("X-Api-Resource-Id"))
}

func TestASRRequiresAudioAndCredentials(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewASRClient(testConfig(), logger).Transcribe(context.Background(), speech.TranscribeRequest{})
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = NewASRClient(speech.Config{}, logger).Transcribe(context.Background(), speech.TranscribeRequest{Audio: []byte{1}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTTSSynthesizeRetriesOnResourceMismatch(t *testing.T) {
	var (
		mu        sync.Mutex
		resources []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resources = append(resources, r.Header.Get("X-Api-Resource-Id"))
		attempt := len(resources)
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		req := readFrame(t, conn)
		assert.Contains(t, string(req.Payload), `"text":"Goodbye!"`)

		if attempt == 1 {
			fail := &Frame{Type: ErrorMessage, ErrorCode: 45000000, Payload: []byte(`{"error":"resource ID is mismatched with speaker related resource"}`)}
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, fail.Encode()))
			return
		}

		chunk := &Frame{Type: AudioOnlyServerResponse, Flags: PositiveSequence, Sequence: 1, Payload: []byte("ID3")}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk.Encode()))

		body, _ := json.Marshal(map[string]any{"code": 3000, "reqid": "req-1", "data": base64.StdEncoding.EncodeToString([]byte("tail"))})
		done := &Frame{Type: FullServerResponse, Flags: WithEvent, Event: EventSessionFinished, SessionID: "x", Serialization: JSONSerialization, Payload: body}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, done.Encode()))
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	cfg := testConfig()
	cfg.TTSURL = wsURL(server)
	cfg.TTSVoice = "en_female_amy_jupiter_bigtts"

	audio, err := NewService(cfg, logger).Synthesize(context.Background(), speech.SynthesizeRequest{Text: "Goodbye!"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3tail"), audio.Data)
	assert.Equal(t, "req-1", audio.RequestID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{ttsSeedResource, ttsDefaultResource}, resources)
}

func TestTTSRejectsEmptyText(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewTTSClient(testConfig(), logger).Synthesize(context.Background(), speech.SynthesizeRequest{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestResourceCandidates(t *testing.T) {
	assert.Equal(t, []string{ttsMegaResource}, resourceCandidates("S_clone"))
	assert.Equal(t, []string{ttsSeedResource, ttsDefaultResource}, resourceCandidates("zh_female_vv_uranus_bigtts"))
	assert.Equal(t, []string{ttsDefaultResource, ttsSeedResource}, resourceCandidates(""))
}

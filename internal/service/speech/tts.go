package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

const (
	DefaultTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	ttsDefaultResource = "volc.service_type.10029"
	ttsMegaResource    = "volc.megatts.default"
	ttsSeedResource    = "seed-tts-2.0"
	ttsSampleRate      = 24000
)

var (
	ErrEmptyText  = errors.New("nothing to synthesize")
	ErrEmptyAudio = errors.New("synthesizer returned no audio")

	errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")
)

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsResult struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// TTSClient synthesizes replies over the Volcengine unidirectional TTS socket.
type TTSClient struct {
	cfg    speech.Config
	dialer *websocket.Dialer
	url    string
	logger logrus.FieldLogger
}

// NewTTSClient builds a client for cfg.
func NewTTSClient(cfg speech.Config, logger logrus.FieldLogger) *TTSClient {
	url := cfg.TTSURL
	if url == "" {
		url = DefaultTTSURL
	}
	return &TTSClient{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		url:    url,
		logger: logger.WithField("component", "tts"),
	}
}

// Synthesize returns audio for req.Text, retrying with the next resource id when the
// speaker belongs to a different resource family.
func (c *TTSClient) Synthesize(ctx context.Context, req speech.SynthesizeRequest) (*speech.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	voice := firstNonEmpty(req.Voice, c.cfg.TTSVoice)
	format := firstNonEmpty(req.Format, "mp3")
	if format == "wav" {
		format = "mp3"
	}

	var lastErr error
	for _, resource := range resourceCandidates(voice) {
		audio, err := c.synthesize(ctx, req, voice, format, resource)
		if err == nil {
			return audio, nil
		}
		if !errors.Is(err, errResourceMismatch) {
			return nil, err
		}
		c.logger.WithFields(logrus.Fields{"voice": voice, "resource": resource}).Warn("tts resource mismatch, trying next")
		lastErr = err
	}
	return nil, lastErr
}

func (c *TTSClient) synthesize(ctx context.Context, req speech.SynthesizeRequest, voice, format, resource string) (*speech.Audio, error) {
	connectID := uuid.NewString()
	header, err := authHeader(c.cfg, resource, connectID)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial tts: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	payload, err := json.Marshal(c.buildRequest(req, voice, format))
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, NewFullClientRequest(payload, NoCompression).Encode()); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read tts response: %w", err)
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case ErrorMessage:
			payload, _ := Decompress(frame.Payload, frame.Compression)
			if strings.Contains(string(payload), errResourceMismatch.Error()) {
				return nil, fmt.Errorf("%w: %s", errResourceMismatch, resource)
			}
			return nil, fmt.Errorf("tts error %d: %s", frame.ErrorCode, string(payload))

		case AudioOnlyServerResponse:
			chunk, err := Decompress(frame.Payload, frame.Compression)
			if err != nil {
				return nil, err
			}
			audio.Write(chunk)

		case FullServerResponse:
			payload, err := Decompress(frame.Payload, frame.Compression)
			if err != nil {
				return nil, err
			}
			var res ttsResult
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &res); err != nil {
					c.logger.WithError(err).Warn("undecodable tts payload")
				} else {
					if res.Code != 0 && res.Code != 3000 {
						return nil, fmt.Errorf("tts api error %d: %s", res.Code, res.Message)
					}
					if res.ReqID != "" {
						reqID = res.ReqID
					}
					if res.Addition.Duration != "" {
						if ms, err := strconv.ParseInt(res.Addition.Duration, 10, 64); err == nil {
							duration = ms
						}
					}
					if res.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(res.Data)
						if err != nil {
							return nil, fmt.Errorf("decode tts audio: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := frame.hasEvent() && frame.Event == EventSessionFinished
			if finished || frame.Last() || res.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, ErrEmptyAudio
				}
				return &speech.Audio{
					Data:      audio.Bytes(),
					Format:    format,
					Duration:  duration,
					RequestID: firstNonEmpty(reqID, connectID),
				}, nil
			}
		}
	}
}

func (c *TTSClient) buildRequest(req speech.SynthesizeRequest, voice, format string) *ttsRequest {
	r := &ttsRequest{}
	r.User.UID = firstNonEmpty(req.SessionID, uuid.NewString())
	r.ReqParams.Speaker = voice
	r.ReqParams.Text = req.Text
	r.ReqParams.Language = firstNonEmpty(req.Language, c.cfg.TTSLanguage)
	r.ReqParams.AudioParams = ttsAudioParams{Format: format, SampleRate: ttsSampleRate}
	if s := c.cfg.TTSSpeed; s > 0 && s != 1 {
		r.ReqParams.AudioParams.SpeedRatio = s
	}
	if v := c.cfg.TTSVolume; v > 0 && v != 1 {
		r.ReqParams.AudioParams.VolumeRatio = v
	}
	return r
}

func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsMegaResource}
	}
	lower := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(lower, hint) {
			return []string{ttsSeedResource, ttsDefaultResource}
		}
	}
	return []string{ttsDefaultResource, ttsSeedResource}
}

package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

const (
	DefaultASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	asrChunkSize    = 6400 // 200ms of 16kHz 16-bit mono PCM
	asrChunkPacing  = 200 * time.Millisecond
	asrSuccessCode  = 20000000
	asrHourResource = "volc.bigasr.sauc.duration"
	asrConcResource = "volc.bigasr.sauc.concurrent"
)

var ErrNoAudio = errors.New("no audio to transcribe")

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// ASRClient recognises complete utterances over the Volcengine streaming ASR socket.
type ASRClient struct {
	cfg    speech.Config
	dialer *websocket.Dialer
	url    string
	pacing time.Duration
	logger logrus.FieldLogger
}

// NewASRClient builds a client for cfg.
func NewASRClient(cfg speech.Config, logger logrus.FieldLogger) *ASRClient {
	url := cfg.ASRURL
	if url == "" {
		url = DefaultASRURL
	}
	return &ASRClient{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		url:    url,
		pacing: asrChunkPacing,
		logger: logger.WithField("component", "asr"),
	}
}

// Transcribe streams req.Audio to the recogniser and returns the final text.
func (c *ASRClient) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.Transcription, error) {
	if len(req.Audio) == 0 {
		return nil, ErrNoAudio
	}

	resource := asrHourResource
	if c.cfg.ConcurrentMode {
		resource = asrConcResource
	}
	header, err := authHeader(c.cfg, resource, req.SessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial asr: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			c.logger.WithField("logid", logID).Debug("asr connected")
		}
	}

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode asr request: %w", err)
	}
	compressed, err := Compress(payload, GzipCompression)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, NewFullClientRequest(compressed, GzipCompression).Encode()); err != nil {
		return nil, fmt.Errorf("send asr request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *speech.Transcription
		err    error
	}
	recvCh := make(chan outcome, 1)
	go func() {
		res, err := c.receive(conn, req.SessionID)
		recvCh <- outcome{res, err}
	}()

	sendCh := make(chan error, 1)
	go func() {
		sendCh <- c.sendAudio(ctx, conn, req.Audio)
	}()

	for {
		select {
		case err := <-sendCh:
			if err != nil {
				return nil, fmt.Errorf("send audio: %w", err)
			}
			sendCh = nil
		case out := <-recvCh:
			return out.result, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *ASRClient) buildRequest(req speech.TranscribeRequest) *asrRequest {
	r := &asrRequest{}
	r.User.UID = req.SessionID
	r.Audio.Format = firstNonEmpty(req.Format, "wav")
	r.Audio.Language = firstNonEmpty(req.Language, c.cfg.ASRLanguage, "en-US")
	r.Audio.Codec = "raw"
	r.Audio.Rate = 16000
	r.Audio.Bits = 16
	r.Audio.Channel = 1
	r.Request.ModelName = "bigmodel"
	r.Request.EnableITN = true
	r.Request.EnablePunc = true
	r.Request.ShowUtterances = true
	r.Request.ResultType = "full"
	r.Request.EndWindowSize = 800
	return r
}

func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	// The full client request holds sequence 1, so audio starts at 2.
	seq := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := Compress(audio[start:end], GzipCompression)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, NewAudioRequest(chunk, seq, last, GzipCompression).Encode()); err != nil {
			return err
		}
		seq++
		if last {
			return nil
		}

		if c.pacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pacing):
			}
		}
	}
	return nil
}

func (c *ASRClient) receive(conn *websocket.Conn, sessionID string) (*speech.Transcription, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read asr response: %w", err)
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case ErrorMessage:
			payload, _ := Decompress(frame.Payload, frame.Compression)
			return nil, fmt.Errorf("asr error %d: %s", frame.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := Decompress(frame.Payload, frame.Compression)
			if err != nil {
				return nil, err
			}
			var res asrResult
			if err := json.Unmarshal(payload, &res); err != nil {
				c.logger.WithError(err).Warn("undecodable asr payload")
				continue
			}
			if res.Code != 0 && res.Code != asrSuccessCode {
				return nil, fmt.Errorf("asr api error %d: %s", res.Code, res.Message)
			}

			candidate := res.Result.Text
			if candidate == "" {
				parts := make([]string, 0, len(res.Result.Utterances))
				for _, u := range res.Result.Utterances {
					parts = append(parts, u.Text)
				}
				candidate = strings.Join(parts, " ")
			}
			if candidate != "" {
				text = candidate
			}
			if res.AudioInfo.Duration > 0 {
				duration = res.AudioInfo.Duration
			}

			if frame.Last() || res.Sequence < 0 {
				if text == "" {
					c.logger.WithField("session", sessionID).Info("empty transcript")
				}
				return &speech.Transcription{Text: text, Duration: duration, RequestID: sessionID}, nil
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

package room

import "encoding/json"

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage is a typed chat line. UseImage attaches the latest camera frame.
type TextMessage struct {
	Text     string `json:"text"`
	UseImage bool   `json:"useImage"`
}

// AudioMessage is one chunk of an utterance. Chunks are buffered until IsFinal.
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// ImageMessage is a camera frame, base64 encoded on the wire.
type ImageMessage struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

// FunctionMessage invokes a registered session function directly.
type FunctionMessage struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ConfigMessage adjusts speech settings for the connection.
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

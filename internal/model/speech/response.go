package speech

// Transcription is the recognised text of one utterance.
type Transcription struct {
	Text      string `json:"text"`
	Duration  int64  `json:"duration"`
	RequestID string `json:"requestId,omitempty"`
}

// Audio is synthesized speech.
type Audio struct {
	Data      []byte `json:"-"`
	Format    string `json:"format"`
	Duration  int64  `json:"duration"`
	RequestID string `json:"requestId,omitempty"`
}

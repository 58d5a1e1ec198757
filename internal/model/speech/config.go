package speech

import "time"

// Config holds Volcengine speech credentials and defaults.
type Config struct {
	AppID          string
	AccessToken    string
	ConcurrentMode bool

	ASRURL      string
	ASRLanguage string

	TTSURL      string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string

	Timeout time.Duration
}

// Enabled reports whether credentials are present.
func (c Config) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

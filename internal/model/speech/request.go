package speech

// TranscribeRequest is one complete utterance to recognise.
type TranscribeRequest struct {
	SessionID string
	Audio     []byte
	Format    string
	Language  string
}

// SynthesizeRequest asks for spoken audio of Text.
type SynthesizeRequest struct {
	SessionID string
	Text      string
	Voice     string
	Format    string
	Language  string
}

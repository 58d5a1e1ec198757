package speech

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

// Service pairs recognition and synthesis behind one collaborator.
type Service struct {
	cfg speech.Config
	asr *ASRClient
	tts *TTSClient
}

// NewService builds both clients from cfg.
func NewService(cfg speech.Config, logger logrus.FieldLogger) *Service {
	return &Service{
		cfg: cfg,
		asr: NewASRClient(cfg, logger),
		tts: NewTTSClient(cfg, logger),
	}
}

// Enabled reports whether credentials were configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled()
}

// Transcribe recognises one utterance, bounded by the configured timeout.
func (s *Service) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.Transcription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.asr.Transcribe(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return res, nil
}

// Synthesize speaks text, bounded by the configured timeout.
func (s *Service) Synthesize(ctx context.Context, req speech.SynthesizeRequest) (*speech.Audio, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	audio, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

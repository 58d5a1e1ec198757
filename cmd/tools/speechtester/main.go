package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/config"
	"github.com/soulbot/soulbot/backend/internal/logging"
	speechmodel "github.com/soulbot/soulbot/backend/internal/model/speech"
	"github.com/soulbot/soulbot/backend/internal/service/speech"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}
	defer closer.Close()

	if !cfg.Speech.Enabled() {
		logger.Fatal("speech is not configured, set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}

	mode := flag.String("mode", "", "asr or tts")
	audioPath := flag.String("audio", "", "input audio file for asr")
	text := flag.String("text", "", "input text for tts")
	outputPath := flag.String("out", "", "output audio file for tts (derived from format when empty)")
	format := flag.String("format", "", "audio format (asr: input, tts: output)")
	language := flag.String("lang", "", "language code, defaults to the configured one")
	voice := flag.String("voice", "", "tts voice, defaults to SPEECH_TTS_VOICE")
	session := flag.String("session", "", "session id, generated when empty")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		logger.Fatal("choose -mode=asr or -mode=tts")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(cfg.Speech, logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log := logger.WithField("session", sessionID)
	switch *mode {
	case "asr":
		runASR(ctx, svc, cfg, log, sessionID, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, svc, cfg, log, sessionID, *text, *voice, *format, *language, *outputPath)
	}
}

func runASR(ctx context.Context, svc *speech.Service, cfg *config.Config, log logrus.FieldLogger, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("asr mode needs -audio")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.WithError(err).Fatal("read audio file")
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}
	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	log.WithFields(logrus.Fields{"format": format, "language": language}).Info("starting asr")

	resp, err := svc.Transcribe(ctx, speechmodel.TranscribeRequest{
		SessionID: sessionID,
		Audio:     data,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.WithError(err).Fatal("asr failed")
	}

	log.WithFields(logrus.Fields{"text": resp.Text, "duration_ms": resp.Duration}).Info("asr succeeded")
}

func runTTS(ctx context.Context, svc *speech.Service, cfg *config.Config, log logrus.FieldLogger, sessionID, text, voice, format, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("tts mode needs -text")
	}
	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}
	if language == "" {
		language = cfg.Speech.TTSLanguage
	}
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	log.WithFields(logrus.Fields{"voice": voice, "format": format}).Info("starting tts")

	resp, err := svc.Synthesize(ctx, speechmodel.SynthesizeRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.WithError(err).Fatal("tts failed")
	}

	if err := os.WriteFile(outputPath, resp.Data, 0o644); err != nil {
		log.WithError(err).Fatal("write audio file")
	}

	log.WithFields(logrus.Fields{"out": outputPath, "duration_ms": resp.Duration}).Info("tts succeeded")
}

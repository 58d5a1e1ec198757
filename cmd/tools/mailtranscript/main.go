package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/bootstrap"
	"github.com/soulbot/soulbot/backend/internal/config"
	"github.com/soulbot/soulbot/backend/internal/logging"
	"github.com/soulbot/soulbot/backend/internal/model/profile"
	"github.com/soulbot/soulbot/backend/internal/service/delivery"
	"github.com/soulbot/soulbot/backend/internal/service/export"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file, using process environment")
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

	file := flag.String("file", "", "transcript artifact, defaults to the newest in TRANSCRIPT_DIR")
	to := flag.String("to", "", "recipient, defaults to the most recent profile's contact")
	subject := flag.String("subject", cfg.Mail.Subject, "email subject")
	dryRun := flag.Bool("dry-run", false, "print the rendered HTML instead of sending")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	path := *file
	if path == "" {
		path, err = export.Latest(cfg.Session.TranscriptDir)
		if err != nil {
			logger.WithError(err).WithField("dir", cfg.Session.TranscriptDir).Fatal("no transcript to send")
		}
	}

	records, err := export.Load(path)
	if err != nil {
		logger.WithError(err).Fatal("load transcript")
	}
	logger.WithFields(logrus.Fields{"file": path, "records": len(records)}).Info("transcript loaded")

	lookup, release := bootstrap.Profiles(ctx, cfg.Profile, logger)
	defer release()
	p := mostRecent(ctx, lookup, logger)

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc, err := export.Render(export.SnapshotFromRecords(sessionID, records), p)
	if err != nil {
		logger.WithError(err).Fatal("render transcript")
	}

	if *dryRun {
		fmt.Fprintln(os.Stdout, doc.HTML)
		return
	}

	recipient := resolveRecipient(*to, p, cfg.Mail.ContactOverride)
	if recipient == "" {
		logger.Fatal("no recipient: pass -to or configure a profile contact")
	}

	sender := bootstrap.Sender(cfg.Mail, logger)
	if err := sender.Send(ctx, recipient, doc, *subject); err != nil {
		if errors.Is(err, delivery.ErrNotConfigured) {
			logger.Fatal("email delivery is not configured, set SENDGRID_API_KEY and MAIL_DEFAULT_SENDER")
		}
		logger.WithError(err).Fatal("send transcript")
	}
	logger.WithField("to", recipient).Info("transcript sent")
}

func mostRecent(ctx context.Context, lookup profile.Lookup, logger logrus.FieldLogger) *profile.Profile {
	if lookup == nil {
		return nil
	}
	p, err := lookup.MostRecent(ctx)
	if err != nil {
		logger.WithError(err).Warn("profile lookup failed, rendering without personalization")
		return nil
	}
	return p
}

// resolveRecipient prefers the explicit flag, then the profile contact, then the override.
func resolveRecipient(flagValue string, p *profile.Profile, override string) string {
	for _, candidate := range []string{flagValue, contactOf(p), override} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && delivery.ValidAddress(candidate) {
			return candidate
		}
	}
	return ""
}

func contactOf(p *profile.Profile) string {
	if !p.HasContact() {
		return ""
	}
	return p.ContactAddress
}

// Package bootstrap turns configuration into the collaborators shared by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/config"
	profilemodel "github.com/soulbot/soulbot/backend/internal/model/profile"
	"github.com/soulbot/soulbot/backend/internal/service/ai"
	"github.com/soulbot/soulbot/backend/internal/service/delivery"
	profilestore "github.com/soulbot/soulbot/backend/internal/service/profile"
	"github.com/soulbot/soulbot/backend/internal/service/session"
)

// Inference builds the configured LLM backend.
func Inference(ctx context.Context, cfg config.InferenceConfig, logger logrus.FieldLogger) (session.Inference, error) {
	provider, err := cfg.ResolveProvider()
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("provider", provider)

	switch provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		inf, err := ai.NewEinoInference(ctx, chatModel, logger)
		if err != nil {
			return nil, err
		}
		return inf, nil
	case config.ProviderAzure:
		inf, err := ai.NewAzureInference(ai.AzureConfig{
			APIKey:     cfg.Azure.APIKey,
			Endpoint:   cfg.Azure.Endpoint,
			APIVersion: cfg.Azure.APIVersion,
			Deployment: cfg.Azure.Deployment,
		}, logger)
		if err != nil {
			return nil, err
		}
		return inf, nil
	case config.ProviderGemini:
		inf, err := ai.NewGeminiInference(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, err
		}
		return inf, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", provider)
	}
}

// Profiles returns the profile lookup and a release func. The database is preferred;
// when it is unreachable the static profile, if any, is used instead. A nil lookup
// means sessions run without personalization.
func Profiles(ctx context.Context, cfg config.ProfileConfig, logger logrus.FieldLogger) (profilemodel.Lookup, func()) {
	if cfg.DatabaseURL != "" {
		pool, err := profilestore.Connect(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.WithField("table", cfg.Table).Info("profile store connected")
			return profilestore.NewPostgresLookup(pool, profilestore.Schema{
				Table:         cfg.Table,
				NameColumn:    cfg.NameColumn,
				ContactColumn: cfg.ContactColumn,
				NotesColumn:   cfg.NotesColumn,
				OrderColumn:   cfg.OrderColumn,
			}), pool.Close
		}
		logger.WithError(err).Warn("profile store unavailable")
	}

	if cfg.HasStatic() {
		return profilemodel.NewStaticLookup(&profilemodel.Profile{
			Name:           cfg.StaticName,
			ContactAddress: cfg.StaticContact,
			Notes:          cfg.StaticNotes,
		}), func() {}
	}

	logger.Info("no profile source configured, personalization disabled")
	return nil, func() {}
}

// Sender returns SendGrid delivery, or a sender that always reports not configured.
func Sender(cfg config.MailConfig, logger logrus.FieldLogger) delivery.Sender {
	if cfg.SendGridAPIKey == "" {
		logger.Info("SENDGRID_API_KEY not set, transcript delivery disabled")
		return delivery.Disabled{}
	}
	sender, err := delivery.NewSendGrid(delivery.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("sendgrid unavailable, transcript delivery disabled")
		return delivery.Disabled{}
	}
	return sender
}

// SessionOptions overlays configured texts on the stock session options.
func SessionOptions(cfg *config.Config) session.Options {
	opts := session.DefaultOptions()
	opts.SystemPrompt = cfg.Session.SystemPrompt
	if cfg.Session.Greeting != "" {
		opts.Greeting = cfg.Session.Greeting
	}
	if cfg.Session.Farewell != "" {
		opts.Farewell = cfg.Session.Farewell
	}
	if cfg.Session.Apology != "" {
		opts.Apology = cfg.Session.Apology
	}
	if cfg.Mail.Subject != "" {
		opts.Subject = cfg.Mail.Subject
	}
	opts.ContactOverride = cfg.Mail.ContactOverride
	return opts
}

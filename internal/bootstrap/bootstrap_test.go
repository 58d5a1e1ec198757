package bootstrap

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbot/soulbot/backend/internal/config"
	"github.com/soulbot/soulbot/backend/internal/service/ai"
	"github.com/soulbot/soulbot/backend/internal/service/delivery"
	"github.com/soulbot/soulbot/backend/internal/service/session"
)

func TestInferenceWithoutProvider(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Inference(context.Background(), config.InferenceConfig{}, logger)
	assert.ErrorIs(t, err, config.ErrNoInference)
}

func TestInferenceAzure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inf, err := Inference(context.Background(), config.InferenceConfig{
		Azure: config.AzureConfig{APIKey: "k", Endpoint: "https://example.openai.azure.com", APIVersion: "2024-08-01-preview", Deployment: "gpt-4"},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ai.AzureInference{}, inf)
}

func TestProfilesStaticFallback(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lookup, release := Profiles(context.Background(), config.ProfileConfig{StaticName: "Asha", StaticContact: "asha@example.com"}, logger)
	defer release()
	require.NotNil(t, lookup)

	p, err := lookup.MostRecent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Name)
	assert.Equal(t, "asha@example.com", p.ContactAddress)
}

func TestProfilesNone(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lookup, release := Profiles(context.Background(), config.ProfileConfig{}, logger)
	defer release()
	assert.Nil(t, lookup)
}

func TestSenderDisabledWithoutKey(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.IsType(t, delivery.Disabled{}, Sender(config.MailConfig{}, logger))
	assert.IsType(t, delivery.Disabled{}, Sender(config.MailConfig{SendGridAPIKey: "k", FromEmail: "not-an-address"}, logger))
	assert.IsType(t, &delivery.SendGrid{}, Sender(config.MailConfig{SendGridAPIKey: "k", FromEmail: "bot@example.com"}, logger))
}

func TestSessionOptionsOverlay(t *testing.T) {
	cfg := &config.Config{
		Session: config.SessionConfig{SystemPrompt: "be brief", Farewell: "Bye!"},
		Mail:    config.MailConfig{Subject: "Notes", ContactOverride: "ops@example.com"},
	}
	opts := SessionOptions(cfg)

	assert.Equal(t, "be brief", opts.SystemPrompt)
	assert.Equal(t, session.DefaultGreeting, opts.Greeting)
	assert.Equal(t, "Bye!", opts.Farewell)
	assert.Equal(t, session.DefaultApology, opts.Apology)
	assert.Equal(t, "Notes", opts.Subject)
	assert.Equal(t, "ops@example.com", opts.ContactOverride)
}

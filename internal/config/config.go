package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

const (
	ProviderArk    = "ark"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

var ErrNoInference = errors.New("no inference provider configured: set AZURE_OPENAI_*, ARK_* or GEMINI_API_KEY")

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Speech    speech.Config
	Profile   ProfileConfig
	Mail      MailConfig
	Session   SessionConfig
	Log       LogConfig
}

// Load reads the environment, plus the file named by SOULBOT_CONFIG when set.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(v.GetString("SOULBOT_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}
	inference, err := loadInferenceConfig(v)
	if err != nil {
		return nil, err
	}
	speechCfg, err := loadSpeechConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Inference: inference,
		Speech:    speechCfg,
		Profile:   loadProfileConfig(v),
		Mail:      loadMailConfig(v),
		Session:   loadSessionConfig(v),
		Log:       loadLogConfig(v),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("AZURE_OPENAI_API_VERSION", "2024-08-01-preview")
	v.SetDefault("AZURE_OPENAI_DEPLOYMENT", "gpt-4")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("SPEECH_ASR_LANGUAGE", "en-US")
	v.SetDefault("SPEECH_TTS_LANGUAGE", "en-US")
	v.SetDefault("SPEECH_TIMEOUT", 30)
	v.SetDefault("PROFILE_TABLE", "patients")
	v.SetDefault("PROFILE_NAME_COLUMN", "full_name")
	v.SetDefault("PROFILE_CONTACT_COLUMN", "email")
	v.SetDefault("PROFILE_NOTES_COLUMN", "medical_problem")
	v.SetDefault("PROFILE_ORDER_COLUMN", "created_at")
	v.SetDefault("MAIL_SUBJECT", "Your Astro Reading")
	v.SetDefault("MAIL_DEFAULT_SENDER_NAME", "Soul-Bot")
	v.SetDefault("TRANSCRIPT_DIR", "conversation_logs")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// loadServerConfig accepts "8080", ":8080" or "host:8080".
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// InferenceConfig selects and configures the LLM backend.
type InferenceConfig struct {
	Provider string
	Ark      ArkConfig
	Azure    AzureConfig
	Gemini   GeminiConfig
}

// ArkConfig describes a Volcengine Ark chat model.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// AzureConfig describes an Azure OpenAI deployment.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
}

// GeminiConfig describes a Gemini API model.
type GeminiConfig struct {
	APIKey string
	Model  string
}

func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

func (c AzureConfig) Enabled() bool {
	return c.APIKey != "" && c.Endpoint != ""
}

func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

// ResolveProvider returns the configured provider, or the first one with credentials.
func (c InferenceConfig) ResolveProvider() (string, error) {
	switch c.Provider {
	case ProviderArk, ProviderAzure, ProviderGemini:
		return c.Provider, nil
	case "":
	default:
		return "", fmt.Errorf("unknown INFERENCE_PROVIDER %q", c.Provider)
	}

	switch {
	case c.Azure.Enabled():
		return ProviderAzure, nil
	case c.Ark.Enabled():
		return ProviderArk, nil
	case c.Gemini.Enabled():
		return ProviderGemini, nil
	}
	return "", ErrNoInference
}

// NewChatModel creates the Ark chat model.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

func loadInferenceConfig(v *viper.Viper) (InferenceConfig, error) {
	temperature, err := parseOptionalFloat(v, "ARK_TEMPERATURE")
	if err != nil {
		return InferenceConfig{}, err
	}
	topP, err := parseOptionalFloat(v, "ARK_TOP_P")
	if err != nil {
		return InferenceConfig{}, err
	}
	maxTokens, err := parseOptionalInt(v, "ARK_MAX_TOKENS")
	if err != nil {
		return InferenceConfig{}, err
	}

	return InferenceConfig{
		Provider: strings.ToLower(str(v, "INFERENCE_PROVIDER")),
		Ark: ArkConfig{
			APIKey:      str(v, "ARK_API_KEY"),
			AccessKey:   str(v, "ARK_ACCESS_KEY"),
			SecretKey:   str(v, "ARK_SECRET_KEY"),
			Model:       str(v, "ARK_MODEL"),
			BaseURL:     str(v, "ARK_BASE_URL"),
			Region:      str(v, "ARK_REGION"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		Azure: AzureConfig{
			APIKey:     str(v, "AZURE_OPENAI_API_KEY"),
			Endpoint:   str(v, "AZURE_OPENAI_ENDPOINT"),
			APIVersion: str(v, "AZURE_OPENAI_API_VERSION"),
			Deployment: str(v, "AZURE_OPENAI_DEPLOYMENT"),
		},
		Gemini: GeminiConfig{
			APIKey: str(v, "GEMINI_API_KEY"),
			Model:  str(v, "GEMINI_MODEL"),
		},
	}, nil
}

func loadSpeechConfig(v *viper.Viper) (speech.Config, error) {
	timeout, err := parseOptionalInt(v, "SPEECH_TIMEOUT")
	if err != nil {
		return speech.Config{}, err
	}
	speed, err := parseOptionalFloat(v, "SPEECH_TTS_SPEED")
	if err != nil {
		return speech.Config{}, err
	}
	volume, err := parseOptionalFloat(v, "SPEECH_TTS_VOLUME")
	if err != nil {
		return speech.Config{}, err
	}
	concurrent, err := parseBool(v, "SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return speech.Config{}, err
	}

	token := str(v, "SPEECH_ACCESS_TOKEN")
	if token == "" {
		token = str(v, "SPEECH_API_KEY")
	}

	cfg := speech.Config{
		AppID:          str(v, "SPEECH_APP_ID"),
		AccessToken:    token,
		ConcurrentMode: concurrent,
		ASRURL:         str(v, "SPEECH_ASR_URL"),
		ASRLanguage:    str(v, "SPEECH_ASR_LANGUAGE"),
		TTSURL:         str(v, "SPEECH_TTS_URL"),
		TTSVoice:       str(v, "SPEECH_TTS_VOICE"),
		TTSSpeed:       1,
		TTSVolume:      1,
		TTSLanguage:    str(v, "SPEECH_TTS_LANGUAGE"),
		Timeout:        30 * time.Second,
	}
	if timeout != nil {
		cfg.Timeout = time.Duration(*timeout) * time.Second
	}
	if speed != nil {
		cfg.TTSSpeed = float32(*speed)
	}
	if volume != nil {
		cfg.TTSVolume = float32(*volume)
	}
	return cfg, nil
}

// ProfileConfig locates the personalization row store, or a static profile.
type ProfileConfig struct {
	DatabaseURL   string
	Table         string
	NameColumn    string
	ContactColumn string
	NotesColumn   string
	OrderColumn   string

	StaticName    string
	StaticContact string
	StaticNotes   string
}

// HasStatic reports whether a fixed profile was configured.
func (c ProfileConfig) HasStatic() bool {
	return c.StaticName != "" || c.StaticContact != "" || c.StaticNotes != ""
}

func loadProfileConfig(v *viper.Viper) ProfileConfig {
	return ProfileConfig{
		DatabaseURL:   str(v, "PROFILE_DATABASE_URL"),
		Table:         str(v, "PROFILE_TABLE"),
		NameColumn:    str(v, "PROFILE_NAME_COLUMN"),
		ContactColumn: str(v, "PROFILE_CONTACT_COLUMN"),
		NotesColumn:   str(v, "PROFILE_NOTES_COLUMN"),
		OrderColumn:   str(v, "PROFILE_ORDER_COLUMN"),
		StaticName:    str(v, "PROFILE_NAME"),
		StaticContact: str(v, "PROFILE_CONTACT"),
		StaticNotes:   str(v, "PROFILE_NOTES"),
	}
}

// MailConfig describes SendGrid delivery.
type MailConfig struct {
	SendGridAPIKey  string
	FromEmail       string
	FromName        string
	Subject         string
	ContactOverride string
}

func loadMailConfig(v *viper.Viper) MailConfig {
	return MailConfig{
		SendGridAPIKey:  str(v, "SENDGRID_API_KEY"),
		FromEmail:       str(v, "MAIL_DEFAULT_SENDER"),
		FromName:        str(v, "MAIL_DEFAULT_SENDER_NAME"),
		Subject:         str(v, "MAIL_SUBJECT"),
		ContactOverride: str(v, "MAIL_CONTACT_OVERRIDE"),
	}
}

// SessionConfig overrides the conversation texts and artifact location.
type SessionConfig struct {
	TranscriptDir string
	SystemPrompt  string
	Greeting      string
	Farewell      string
	Apology       string
}

func loadSessionConfig(v *viper.Viper) SessionConfig {
	return SessionConfig{
		TranscriptDir: str(v, "TRANSCRIPT_DIR"),
		SystemPrompt:  str(v, "SYSTEM_PROMPT"),
		Greeting:      str(v, "SESSION_GREETING"),
		Farewell:      str(v, "SESSION_FAREWELL"),
		Apology:       str(v, "SESSION_APOLOGY"),
	}
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

func loadLogConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:  str(v, "LOG_LEVEL"),
		Format: strings.ToLower(str(v, "LOG_FORMAT")),
		File:   str(v, "LOG_FILE"),
	}
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseBool(v *viper.Viper, key string, def bool) (bool, error) {
	raw := str(v, key)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := str(v, key)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := str(v, key)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Context  ContextConfig
	Reply    ReplyConfig
	Telegram TelegramConfig
	Notify   NotifyConfig
	Watch    WatchConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type ProviderConfig struct {
	// Name selects the backend vendor: "gemini" or "openai".
	Name             string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	Models           []string // ordered fallback chain, cheapest first
	Temperature      float64
	MaxOutputTokens  int
	PermissiveSafety bool
	RefineIntent     bool // model-backed chat/analyze refinement for ambiguous text
}

type ContextConfig struct {
	Enabled           bool
	MaxMessages       int
	CompressThreshold int
	RetainTurns       int
}

type ReplyConfig struct {
	MaxLength       int
	RichMarkup      bool
	DocPreviewLimit int
	MaxChunkSize    int
	MaxSummarySize  int
}

type TelegramConfig struct {
	Token   string
	OwnerID int64
}

type NotifyConfig struct {
	NotionToken      string
	NotionDatabaseID string
	N8NWebhookURL    string
	SlackToken       string
	SlackChannel     string
}

type WatchConfig struct {
	MailFeedURL     string
	IntervalSeconds int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Provider: ProviderConfig{
			Name:             "gemini",
			Models:           []string{"gemini-2.5-flash", "gemini-1.5-pro", "gemini-pro-vision"},
			Temperature:      0.2,
			MaxOutputTokens:  1024,
			PermissiveSafety: false,
			RefineIntent:     false,
		},
		Context: ContextConfig{
			Enabled:           true,
			MaxMessages:       12,
			CompressThreshold: 12000,
			RetainTurns:       2,
		},
		Reply: ReplyConfig{
			MaxLength:       4096,
			RichMarkup:      true,
			DocPreviewLimit: 3500,
			MaxChunkSize:    8000,
			MaxSummarySize:  1000,
		},
		Watch: WatchConfig{
			IntervalSeconds: 60,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "aihub")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aihub"
	}
	return filepath.Join(home, ".local", "share", "aihub")
}

// Load reads configuration from AIHUB_* environment variables over safe
// defaults. The only required value is a credential for the selected
// provider (AIHUB_GEMINI_API_KEY or AIHUB_OPENAI_API_KEY).
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()
	applyOverrides(&cfg, getenv)

	switch cfg.Provider.Name {
	case "gemini":
		if cfg.Provider.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: set AIHUB_GEMINI_API_KEY (or switch providers via AIHUB_PROVIDER)")
		}
	case "openai":
		if cfg.Provider.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: set AIHUB_OPENAI_API_KEY (or switch providers via AIHUB_PROVIDER)")
		}
	default:
		return Config{}, fmt.Errorf("unknown provider %q: expected gemini or openai", cfg.Provider.Name)
	}

	if len(cfg.Provider.Models) == 0 {
		return Config{}, fmt.Errorf("model fallback chain must not be empty")
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, getenv func(string) string) {
	setString(getenv, "AIHUB_PROVIDER", &cfg.Provider.Name)
	setString(getenv, "AIHUB_GEMINI_API_KEY", &cfg.Provider.GeminiAPIKey)
	setString(getenv, "AIHUB_OPENAI_API_KEY", &cfg.Provider.OpenAIAPIKey)
	setString(getenv, "AIHUB_OPENAI_BASE_URL", &cfg.Provider.OpenAIBaseURL)
	if v := getenv("AIHUB_MODELS"); v != "" {
		cfg.Provider.Models = splitList(v)
	}
	setFloat(getenv, "AIHUB_TEMPERATURE", &cfg.Provider.Temperature)
	setInt(getenv, "AIHUB_MAX_OUTPUT_TOKENS", &cfg.Provider.MaxOutputTokens)
	setBool(getenv, "AIHUB_PERMISSIVE_SAFETY", &cfg.Provider.PermissiveSafety)
	setBool(getenv, "AIHUB_REFINE_INTENT", &cfg.Provider.RefineIntent)

	setBool(getenv, "AIHUB_CONTEXT_ENABLED", &cfg.Context.Enabled)
	setInt(getenv, "AIHUB_CONTEXT_MAX_MESSAGES", &cfg.Context.MaxMessages)
	setInt(getenv, "AIHUB_CONTEXT_COMPRESS_THRESHOLD", &cfg.Context.CompressThreshold)
	setInt(getenv, "AIHUB_CONTEXT_RETAIN_TURNS", &cfg.Context.RetainTurns)

	setInt(getenv, "AIHUB_REPLY_MAX_LENGTH", &cfg.Reply.MaxLength)
	setBool(getenv, "AIHUB_RICH_MARKUP", &cfg.Reply.RichMarkup)
	setInt(getenv, "AIHUB_DOC_PREVIEW_LIMIT", &cfg.Reply.DocPreviewLimit)
	setInt(getenv, "AIHUB_MAX_CHUNK_SIZE", &cfg.Reply.MaxChunkSize)
	setInt(getenv, "AIHUB_MAX_SUMMARY_SIZE", &cfg.Reply.MaxSummarySize)

	setString(getenv, "AIHUB_TELEGRAM_TOKEN", &cfg.Telegram.Token)
	if v := getenv("AIHUB_OWNER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.OwnerID = id
		}
	}

	setString(getenv, "AIHUB_NOTION_TOKEN", &cfg.Notify.NotionToken)
	setString(getenv, "AIHUB_NOTION_DATABASE_ID", &cfg.Notify.NotionDatabaseID)
	setString(getenv, "AIHUB_N8N_WEBHOOK_URL", &cfg.Notify.N8NWebhookURL)
	setString(getenv, "AIHUB_SLACK_TOKEN", &cfg.Notify.SlackToken)
	setString(getenv, "AIHUB_SLACK_CHANNEL", &cfg.Notify.SlackChannel)

	setString(getenv, "AIHUB_MAIL_FEED_URL", &cfg.Watch.MailFeedURL)
	setInt(getenv, "AIHUB_WATCH_INTERVAL", &cfg.Watch.IntervalSeconds)

	setInt(getenv, "AIHUB_PORT", &cfg.Server.Port)
	setString(getenv, "AIHUB_API_TOKEN", &cfg.Server.APIToken)
	setString(getenv, "AIHUB_DATA_DIR", &cfg.Storage.DataDir)
	setString(getenv, "AIHUB_LOG_LEVEL", &cfg.Log.Level)
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(getenv func(string) string, key string, dst *int) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(getenv func(string) string, key string, dst *float64) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(getenv func(string) string, key string, dst *bool) {
	switch strings.ToLower(getenv(key)) {
	case "1", "true", "yes", "y", "on":
		*dst = true
	case "0", "false", "no", "n", "off":
		*dst = false
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Entry is a single displayable configuration key/value.
type Entry struct {
	Key   string
	Value string
}

// ShowAll returns the effective configuration as displayable entries,
// with credentials redacted.
func ShowAll(cfg Config) []Entry {
	return []Entry{
		{"provider", cfg.Provider.Name},
		{"models", strings.Join(cfg.Provider.Models, ", ")},
		{"temperature", strconv.FormatFloat(cfg.Provider.Temperature, 'f', -1, 64)},
		{"max_output_tokens", strconv.Itoa(cfg.Provider.MaxOutputTokens)},
		{"gemini_api_key", redact(cfg.Provider.GeminiAPIKey)},
		{"openai_api_key", redact(cfg.Provider.OpenAIAPIKey)},
		{"context_enabled", strconv.FormatBool(cfg.Context.Enabled)},
		{"context_max_messages", strconv.Itoa(cfg.Context.MaxMessages)},
		{"context_compress_threshold", strconv.Itoa(cfg.Context.CompressThreshold)},
		{"reply_max_length", strconv.Itoa(cfg.Reply.MaxLength)},
		{"rich_markup", strconv.FormatBool(cfg.Reply.RichMarkup)},
		{"telegram_token", redact(cfg.Telegram.Token)},
		{"owner_id", strconv.FormatInt(cfg.Telegram.OwnerID, 10)},
		{"mail_feed_url", cfg.Watch.MailFeedURL},
		{"port", strconv.Itoa(cfg.Server.Port)},
		{"data_dir", cfg.Storage.DataDir},
		{"log_level", cfg.Log.Level},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

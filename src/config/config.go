package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openai"
	APIKeyPathEnvVar  = "OPENAI_API_KEY_FILE"
	APIKeyEnvVar      = "OPENAI_API_KEY"
	ModelEnvVar       = "OPENAI_MODEL"
	EnvPathEnvVar     = "SCREEN_CHAT_LLM"

	DefaultModel         = "gpt-4o"
	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultCaptureHotkey = "Cmd+Shift+C"
	DefaultEditHotkey    = "Cmd+Shift+E"

	defaultConnectTimeoutSec        = 10
	defaultResponseHeaderTimeoutSec = 60
)

type LoadOptions struct {
	APIKeyPathOverride string
	ModelOverride      string
}

type Config struct {
	APIKey     string
	APIKeyPath string
	Model      string
	BaseURL    string
	Providers  []string
	MaxTokens  int

	CaptureHotkey string
	EditHotkey    string

	// DevicePixelRatio overrides the ratio estimated from the capture when > 0.
	DevicePixelRatio float64

	EnableFileLogging bool

	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use SCREEN_CHAT_LLM env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	model := getEnvWithDefault(ModelEnvVar, DefaultModel)
	if override := strings.TrimSpace(opts.ModelOverride); override != "" {
		model = override
	}

	cfg := &Config{
		APIKey:                resolveAPIKey(apiKeyPath),
		APIKeyPath:            apiKeyPath,
		Model:                 model,
		BaseURL:               getEnvWithDefault("API_BASE_URL", DefaultBaseURL),
		Providers:             splitList(os.Getenv("PROVIDERS")),
		MaxTokens:             positiveInt("MAX_TOKENS", 0),
		CaptureHotkey:         getEnvWithDefault("CAPTURE_HOTKEY", DefaultCaptureHotkey),
		EditHotkey:            getEnvWithDefault("EDIT_HOTKEY", DefaultEditHotkey),
		DevicePixelRatio:      positiveFloat("DEVICE_PIXEL_RATIO"),
		EnableFileLogging:     strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		ConnectTimeout:        time.Duration(positiveInt("CONNECT_TIMEOUT_SEC", defaultConnectTimeoutSec)) * time.Second,
		ResponseHeaderTimeout: time.Duration(positiveInt("RESPONSE_HEADER_TIMEOUT_SEC", defaultResponseHeaderTimeoutSec)) * time.Second,
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

// resolveAPIKey prefers a non-empty key file over the environment variable.
func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return strings.TrimSpace(os.Getenv(APIKeyEnvVar))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func positiveInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func positiveFloat(key string) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f
		}
	}
	return 0
}

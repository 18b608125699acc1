// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Source   SourceConfig
	Speech   SpeechConfig
	Position PositionConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds settings storage configuration.
type DataConfig struct {
	BasePath string // Badger directory (default: ~/ListenUp/reader)
	InMemory bool   // Keep settings in memory only (default: false)
}

// SourceConfig holds content host configuration. Credentials live in the settings record.
type SourceConfig struct {
	APIHost           string        // Listing API base URL
	RawHost           string        // Raw file base URL
	Extension         string        // Chapter file extension (default: .md)
	RequestTimeout    time.Duration // Per-request timeout (default: 30s)
	RequestsPerSecond float64       // Per-host rate limit (default: 5)
	Burst             int           // Per-host burst (default: 10)
}

// SpeechConfig holds text-to-speech and audio output configuration.
type SpeechConfig struct {
	PiperPath        string        // Piper binary (default: piper)
	PiperModel       string        // ONNX voice model; speech is disabled when empty
	Voice            string        // Speaker id passed to piper
	PlayerPath       string        // Audio player reading WAV on stdin (default: aplay)
	PlayerArgs       []string      // Player arguments (default: -q -)
	ProgressInterval time.Duration // Progress event spacing (default: 1s)
}

// PositionConfig holds reading position persistence configuration.
type PositionConfig struct {
	SaveInterval time.Duration // Minimum spacing of tracked saves (default: 1s)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string        // Listen address (default: 127.0.0.1)
	Port           string        // Server port (default: 8787)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 0, SSE streams stay open)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	AllowedOrigins []string      // CORS origins (default: *)
}

// LoadConfig loads configuration from the process arguments and environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("listenup-reader", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for the settings database")
	inMemory := fs.String("in-memory", "", "Keep settings in memory only (default: false)")

	// Source flags
	apiHost := fs.String("api-host", "", "Content listing API base URL")
	rawHost := fs.String("raw-host", "", "Raw content base URL")
	extension := fs.String("chapter-ext", "", "Chapter file extension (default: .md)")
	requestTimeout := fs.String("request-timeout", "", "Content request timeout (default: 30s)")
	rps := fs.String("source-rps", "", "Content requests per second per host (default: 5)")
	burst := fs.String("source-burst", "", "Content request burst per host (default: 10)")

	// Speech flags
	piperPath := fs.String("piper-path", "", "Path to the piper binary (default: piper)")
	piperModel := fs.String("piper-model", "", "Path to the piper voice model")
	voice := fs.String("voice", "", "Piper speaker id")
	playerPath := fs.String("player-path", "", "Audio player command (default: aplay)")
	playerArgs := fs.String("player-args", "", "Space separated audio player arguments (default: -q -)")
	progressInterval := fs.String("progress-interval", "", "Playback progress interval (default: 1s)")

	saveInterval := fs.String("save-interval", "", "Minimum spacing of position saves (default: 1s)")

	// Server flags
	serverHost := fs.String("host", "", "Listen address (default: 127.0.0.1)")
	serverPort := fs.String("port", "", "Server port (default: 8787)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	allowedOrigins := fs.String("allowed-origins", "", "Comma separated CORS origins (default: *)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	// godotenv never overrides variables already present in the environment.
	_ = godotenv.Load(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
			InMemory: getBoolConfigValue(*inMemory, "DATA_IN_MEMORY", false),
		},
		Source: SourceConfig{
			APIHost:   getConfigValue(*apiHost, "SOURCE_API_HOST", "https://api.github.com"),
			RawHost:   getConfigValue(*rawHost, "SOURCE_RAW_HOST", "https://raw.githubusercontent.com"),
			Extension: getConfigValue(*extension, "CHAPTER_EXTENSION", ".md"),
			Burst:     getIntConfigValue(*burst, "SOURCE_BURST", 10),
		},
		Speech: SpeechConfig{
			PiperPath:  getConfigValue(*piperPath, "PIPER_PATH", "piper"),
			PiperModel: getConfigValue(*piperModel, "PIPER_MODEL", ""),
			Voice:      getConfigValue(*voice, "PIPER_VOICE", ""),
			PlayerPath: getConfigValue(*playerPath, "PLAYER_PATH", "aplay"),
			PlayerArgs: strings.Fields(getConfigValue(*playerArgs, "PLAYER_ARGS", "-q -")),
		},
		Server: ServerConfig{
			Host:           getConfigValue(*serverHost, "SERVER_HOST", "127.0.0.1"),
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8787"),
			AllowedOrigins: splitList(getConfigValue(*allowedOrigins, "ALLOWED_ORIGINS", "*")),
		},
	}

	rpsStr := getConfigValue(*rps, "SOURCE_RPS", "5")
	rpsValue, err := strconv.ParseFloat(rpsStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid source rps %q: %w", rpsStr, err)
	}
	cfg.Source.RequestsPerSecond = rpsValue

	durations := []struct {
		flagValue, envKey, def, name string
		dst                          *time.Duration
	}{
		{*requestTimeout, "SOURCE_REQUEST_TIMEOUT", "30s", "request timeout", &cfg.Source.RequestTimeout},
		{*progressInterval, "PROGRESS_INTERVAL", "1s", "progress interval", &cfg.Speech.ProgressInterval},
		{*saveInterval, "POSITION_SAVE_INTERVAL", "1s", "save interval", &cfg.Position.SaveInterval},
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s", "write timeout", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout", &cfg.Server.IdleTimeout},
	}
	for _, d := range durations {
		str := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, str, err)
		}
		*d.dst = parsed
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if !c.Data.InMemory && c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Source.APIHost == "" || c.Source.RawHost == "" {
		return errors.New("source hosts cannot be empty")
	}
	if !strings.HasPrefix(c.Source.Extension, ".") {
		return fmt.Errorf("invalid chapter extension: %s (must start with a dot)", c.Source.Extension)
	}
	if c.Source.RequestsPerSecond <= 0 || c.Source.Burst <= 0 {
		return errors.New("source rate limit must be positive")
	}

	if c.Speech.ProgressInterval <= 0 {
		return errors.New("progress interval must be positive")
	}
	if c.Position.SaveInterval <= 0 {
		return errors.New("save interval must be positive")
	}

	return nil
}

// SpeechEnabled reports whether a voice model is configured.
func (c *Config) SpeechEnabled() bool {
	return c.Speech.PiperModel != ""
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "ListenUp", "reader")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

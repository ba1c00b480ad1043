// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/docchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the main configuration structure for docchat.
type Config struct {
	// Backend is the remote chat service
	Backend BackendConfig `toml:"backend" json:"backend" yaml:"backend"`

	// Upload tunes the document workflow
	Upload UploadConfig `toml:"upload" json:"upload" yaml:"upload"`

	// Speech configures voice input and output
	Speech SpeechConfig `toml:"speech" json:"speech" yaml:"speech"`

	// Logging configures the zap logger
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// User holds the signed-in identity
	User UserConfig `toml:"user" json:"user" yaml:"user"`
}

// BackendConfig contains remote chat service settings.
type BackendConfig struct {
	// BaseURL is the service base URL
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// TimeoutSecs bounds each request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`

	// RequestsPerSecond and Burst set the client-side rate limit
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst" yaml:"burst"`

	// PropagationDelayMs is waited after purging chat histories
	PropagationDelayMs int `toml:"propagation_delay_ms" json:"propagation_delay_ms" yaml:"propagation_delay_ms"`
}

// UploadConfig contains document workflow settings.
type UploadConfig struct {
	// MaxAttempts bounds OCR polling
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// RetryDelayMs is the wait between polls
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms" yaml:"retry_delay_ms"`

	// ChatTitle names chats created for an upload
	ChatTitle string `toml:"chat_title" json:"chat_title" yaml:"chat_title"`

	// MaxFileBytes refuses larger documents; 0 disables the check
	MaxFileBytes int64 `toml:"max_file_bytes" json:"max_file_bytes" yaml:"max_file_bytes"`

	// MaxConcurrent limits background uploads
	MaxConcurrent int `toml:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"`

	// WatchDebounceMs is the quiet period before the inbox watcher uploads a file
	WatchDebounceMs int `toml:"watch_debounce_ms" json:"watch_debounce_ms" yaml:"watch_debounce_ms"`
}

// SpeechConfig contains voice settings.
type SpeechConfig struct {
	// Locale is the recognition locale
	Locale string `toml:"locale" json:"locale" yaml:"locale"`

	// Recognizer is "deepgram" or "none"
	Recognizer string `toml:"recognizer" json:"recognizer" yaml:"recognizer"`

	// Synthesizer is "polly" or "none"
	Synthesizer string `toml:"synthesizer" json:"synthesizer" yaml:"synthesizer"`

	Deepgram DeepgramConfig `toml:"deepgram" json:"deepgram" yaml:"deepgram"`
	Polly    PollyConfig    `toml:"polly" json:"polly" yaml:"polly"`
}

// DeepgramConfig configures the recognition host.
type DeepgramConfig struct {
	// APIKey is the Deepgram token (never logged)
	APIKey string `toml:"api_key" json:"api_key" yaml:"api_key"`

	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	Model    string `toml:"model" json:"model" yaml:"model"`

	// RecordCommand captures one utterance to stdout, e.g. ["arecord", "-d", "5", "-t", "wav"]
	RecordCommand []string `toml:"record_command" json:"record_command" yaml:"record_command"`

	// AudioFile is transcribed instead of recording when set
	AudioFile string `toml:"audio_file" json:"audio_file" yaml:"audio_file"`
}

// PollyConfig configures the synthesis host.
type PollyConfig struct {
	Region  string `toml:"region" json:"region" yaml:"region"`
	VoiceID string `toml:"voice_id" json:"voice_id" yaml:"voice_id"`
	Engine  string `toml:"engine" json:"engine" yaml:"engine"`

	// PlayerCommand plays MP3 from stdin; empty means autodetect
	PlayerCommand []string `toml:"player_command" json:"player_command" yaml:"player_command"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "console" or "json"
	Format string `toml:"format" json:"format" yaml:"format"`

	// File receives logs; empty means stderr
	File string `toml:"file" json:"file" yaml:"file"`
}

// UserConfig holds the signed-in identity.
type UserConfig struct {
	ID string `toml:"id" json:"id" yaml:"id"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a new Config with sensible defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:            "http://127.0.0.1:5000",
			TimeoutSecs:        30,
			RequestsPerSecond:  10,
			Burst:              20,
			PropagationDelayMs: 500,
		},
		Upload: UploadConfig{
			MaxAttempts:     5,
			RetryDelayMs:    3000,
			ChatTitle:       "Nouvelle conversation",
			MaxFileBytes:    25 << 20,
			MaxConcurrent:   2,
			WatchDebounceMs: 500,
		},
		Speech: SpeechConfig{
			Locale:      "fr-FR",
			Recognizer:  "deepgram",
			Synthesizer: "polly",
			Deepgram: DeepgramConfig{
				Endpoint: "https://api.deepgram.com/v1/listen",
				Model:    "nova-2",
			},
			Polly: PollyConfig{
				Region:  "eu-west-3",
				VoiceID: "Lea",
				Engine:  "neural",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Timeout returns the request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// PropagationDelay returns the post-purge wait.
func (b BackendConfig) PropagationDelay() time.Duration {
	return time.Duration(b.PropagationDelayMs) * time.Millisecond
}

// RetryDelay returns the wait between OCR polls.
func (u UploadConfig) RetryDelay() time.Duration {
	return time.Duration(u.RetryDelayMs) * time.Millisecond
}

// WatchDebounce returns the inbox quiet period.
func (u UploadConfig) WatchDebounce() time.Duration {
	return time.Duration(u.WatchDebounceMs) * time.Millisecond
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the configuration directory (~/.docchat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".docchat"), nil
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) { return configPath("config.toml") }

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) { return configPath("config.json") }

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) { return configPath("config.yaml") }

// HistoryPath returns the REPL line history file.
func HistoryPath() (string, error) { return configPath("history") }

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions keeps config files at 0600, they may hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

type loader struct {
	path func() (string, error)
	load func(*Config, string) error
	name string
}

// Load loads configuration from the config directory.
// Tries TOML, then JSON, then YAML, and falls back to defaults.
// Environment overrides are applied last. A file that fails to parse is
// reported alongside the defaults.
func Load() (*Config, error) {
	loaders := []loader{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
		{ConfigPathYAML, LoadYAML, "YAML"},
	}

	var loadErr error
	for _, l := range loaders {
		path, err := l.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg := Default()
		if err := l.load(cfg, path); err != nil {
			if loadErr == nil {
				loadErr = fmt.Errorf("failed to load %s config: %w", l.name, err)
			}
			continue
		}
		return finish(cfg)
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file, choosing the
// decoder by extension (TOML when unknown).
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	warnPermissions(path)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file into cfg.
func LoadYAML(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// warnPermissions runs before the logger exists, so it writes to stderr.
func warnPermissions(path string) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# docchat configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return write(path, buf.Bytes())
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return write(path, data)
}

// SaveYAML writes cfg as YAML with 0600 permissions.
func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return write(path, data)
}

func write(path string, data []byte) error {
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when any
// field is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("backend.base_url", "must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.TimeoutSecs < 1 || c.Backend.TimeoutSecs > 600 {
		add("backend.timeout_secs", "must be between 1 and 600, got %d", c.Backend.TimeoutSecs)
	}
	if c.Backend.RequestsPerSecond <= 0 {
		add("backend.requests_per_second", "must be positive, got %v", c.Backend.RequestsPerSecond)
	}
	if c.Backend.Burst < 1 {
		add("backend.burst", "must be at least 1, got %d", c.Backend.Burst)
	}
	if c.Backend.PropagationDelayMs < 0 {
		add("backend.propagation_delay_ms", "must not be negative, got %d", c.Backend.PropagationDelayMs)
	}

	if c.Upload.MaxAttempts < 1 || c.Upload.MaxAttempts > 100 {
		add("upload.max_attempts", "must be between 1 and 100, got %d", c.Upload.MaxAttempts)
	}
	if c.Upload.RetryDelayMs < 0 {
		add("upload.retry_delay_ms", "must not be negative, got %d", c.Upload.RetryDelayMs)
	}
	if c.Upload.MaxFileBytes < 0 {
		add("upload.max_file_bytes", "must not be negative, got %d", c.Upload.MaxFileBytes)
	}
	if c.Upload.MaxConcurrent < 1 {
		add("upload.max_concurrent", "must be at least 1, got %d", c.Upload.MaxConcurrent)
	}
	if c.Upload.WatchDebounceMs < 0 {
		add("upload.watch_debounce_ms", "must not be negative, got %d", c.Upload.WatchDebounceMs)
	}

	switch c.Speech.Recognizer {
	case "deepgram", "none":
	default:
		add("speech.recognizer", "must be deepgram or none, got %q", c.Speech.Recognizer)
	}
	switch c.Speech.Synthesizer {
	case "polly", "none":
	default:
		add("speech.synthesizer", "must be polly or none, got %q", c.Speech.Synthesizer)
	}
	switch c.Speech.Polly.Engine {
	case "neural", "standard":
	default:
		add("speech.polly.engine", "must be neural or standard, got %q", c.Speech.Polly.Engine)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format", "must be console or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty fields with defaults. Explicit zero values that
// carry meaning (max_file_bytes, retry_delay_ms) are preserved.
func (c *Config) SetDefaults() {
	d := Default()

	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		c.Backend.BaseURL = d.Backend.BaseURL
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Backend.RequestsPerSecond == 0 {
		c.Backend.RequestsPerSecond = d.Backend.RequestsPerSecond
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = d.Backend.Burst
	}

	if c.Upload.MaxAttempts == 0 {
		c.Upload.MaxAttempts = d.Upload.MaxAttempts
	}
	if strings.TrimSpace(c.Upload.ChatTitle) == "" {
		c.Upload.ChatTitle = d.Upload.ChatTitle
	}
	if c.Upload.MaxConcurrent == 0 {
		c.Upload.MaxConcurrent = d.Upload.MaxConcurrent
	}

	if c.Speech.Locale == "" {
		c.Speech.Locale = d.Speech.Locale
	}
	if c.Speech.Recognizer == "" {
		c.Speech.Recognizer = d.Speech.Recognizer
	}
	if c.Speech.Synthesizer == "" {
		c.Speech.Synthesizer = d.Speech.Synthesizer
	}
	if c.Speech.Deepgram.Endpoint == "" {
		c.Speech.Deepgram.Endpoint = d.Speech.Deepgram.Endpoint
	}
	if c.Speech.Deepgram.Model == "" {
		c.Speech.Deepgram.Model = d.Speech.Deepgram.Model
	}
	if c.Speech.Polly.Region == "" {
		c.Speech.Polly.Region = d.Speech.Polly.Region
	}
	if c.Speech.Polly.VoiceID == "" {
		c.Speech.Polly.VoiceID = d.Speech.Polly.VoiceID
	}
	if c.Speech.Polly.Engine == "" {
		c.Speech.Polly.Engine = d.Speech.Polly.Engine
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}

	c.User.ID = strings.TrimSpace(c.User.ID)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies DOCCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DOCCHAT_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DOCCHAT_USER_ID"); v != "" {
		c.User.ID = v
	}
	if v := os.Getenv("DOCCHAT_LOCALE"); v != "" {
		c.Speech.Locale = v
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCCHAT_DEEPGRAM_KEY"); v != "" {
		c.Speech.Deepgram.APIKey = v
	}
	if v := os.Getenv("DOCCHAT_POLLY_VOICE"); v != "" {
		c.Speech.Polly.VoiceID = v
	}
	if v := os.Getenv("DOCCHAT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Upload.MaxAttempts = n
		}
	}
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := *c
	if safe.Speech.Deepgram.APIKey != "" {
		safe.Speech.Deepgram.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&safe, "", "  ")
	return string(data)
}

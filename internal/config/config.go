// Package config loads and validates application configuration from a TOML
// file, with API keys overridable from the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server holds HTTP listener and upload settings.
type Server struct {
	Bind              string `toml:"bind"`
	UploadDir         string `toml:"upload_dir"`
	TempDir           string `toml:"temp_dir"`
	MaxUploadMB       int64  `toml:"max_upload_mb"`
	SessionTTLMinutes int    `toml:"session_ttl_minutes"`
}

// Gemini holds settings for the multimodal inference service.
type Gemini struct {
	APIKey                string `toml:"api_key"`
	BaseURL               string `toml:"base_url"`
	Model                 string `toml:"model"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	ProcessingWarnSeconds int    `toml:"processing_warn_seconds"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
}

// ElevenLabs holds settings for the speech synthesis service. The API key
// is optional: without it narration stays disabled and the UI says so.
type ElevenLabs struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ModelID        string `toml:"model_id"`
	DefaultVoiceID string `toml:"default_voice_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Coach selects the coaching persona used in prompts. Persona names other
// than the built-in presets require an explicit title and discipline.
type Coach struct {
	Persona    string `toml:"persona"`
	Title      string `toml:"title"`
	Discipline string `toml:"discipline"`
}

// Database holds the session store DSN. The default is a shared in-memory
// sqlite database, so session state never outlives the process.
type Database struct {
	DSN string `toml:"dsn"`
}

// Logging controls log level and output format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Server     Server     `toml:"server"`
	Gemini     Gemini     `toml:"gemini"`
	ElevenLabs ElevenLabs `toml:"elevenlabs"`
	Coach      Coach      `toml:"coach"`
	Database   Database   `toml:"database"`
	Logging    Logging    `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Bind:              ":8080",
			UploadDir:         "./uploads",
			MaxUploadMB:       100,
			SessionTTLMinutes: 120,
		},
		Gemini: Gemini{
			BaseURL:               "https://generativelanguage.googleapis.com",
			Model:                 "gemini-2.0-flash-exp",
			PollIntervalSeconds:   1,
			ProcessingWarnSeconds: 60,
			TimeoutSeconds:        180,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        "https://api.elevenlabs.io",
			ModelID:        "eleven_multilingual_v2",
			DefaultVoiceID: "21m00Tcm4TlvDq8ikWAM",
			TimeoutSeconds: 120,
		},
		Coach: Coach{
			Persona: "crossfit",
		},
		Database: Database{
			DSN: "file:cfvideoanalysis?mode=memory&cache=shared",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path. An empty path falls back to
// ./cfvideoanalysis.toml. A missing file is not an error: defaults apply
// and exists reports false. Environment variables GEMINI_API_KEY and
// ELEVENLABS_API_KEY override the corresponding file values.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	cfg = Default()
	resolved = path
	if resolved == "" {
		resolved = "cfvideoanalysis.toml"
	}
	resolved, err = expandPath(resolved)
	if err != nil {
		return nil, "", false, err
	}

	f, err := os.Open(resolved)
	switch {
	case err == nil:
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		exists = true
	case os.IsNotExist(err):
		exists = false
	default:
		return nil, resolved, false, fmt.Errorf("open config %s: %w", resolved, err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, exists, err
	}
	return cfg, resolved, exists, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("ELEVENLABS_API_KEY"); v != "" {
		c.ElevenLabs.APIKey = v
	}
}

func (c *Config) normalize() {
	def := Default()

	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = def.Server.UploadDir
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if c.Server.SessionTTLMinutes <= 0 {
		c.Server.SessionTTLMinutes = def.Server.SessionTTLMinutes
	}

	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	c.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gemini.BaseURL), "/")
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = def.Gemini.BaseURL
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = def.Gemini.Model
	}
	if c.Gemini.PollIntervalSeconds <= 0 {
		c.Gemini.PollIntervalSeconds = def.Gemini.PollIntervalSeconds
	}
	if c.Gemini.ProcessingWarnSeconds <= 0 {
		c.Gemini.ProcessingWarnSeconds = def.Gemini.ProcessingWarnSeconds
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = def.Gemini.TimeoutSeconds
	}

	c.ElevenLabs.APIKey = strings.TrimSpace(c.ElevenLabs.APIKey)
	c.ElevenLabs.BaseURL = strings.TrimRight(strings.TrimSpace(c.ElevenLabs.BaseURL), "/")
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = def.ElevenLabs.BaseURL
	}
	if c.ElevenLabs.ModelID == "" {
		c.ElevenLabs.ModelID = def.ElevenLabs.ModelID
	}
	if c.ElevenLabs.DefaultVoiceID == "" {
		c.ElevenLabs.DefaultVoiceID = def.ElevenLabs.DefaultVoiceID
	}
	if c.ElevenLabs.TimeoutSeconds <= 0 {
		c.ElevenLabs.TimeoutSeconds = def.ElevenLabs.TimeoutSeconds
	}

	c.Coach.Persona = strings.ToLower(strings.TrimSpace(c.Coach.Persona))
	if c.Coach.Persona == "" {
		c.Coach.Persona = def.Coach.Persona
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = def.Database.DSN
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate reports configuration the application cannot start with.
// The Gemini key is required; the ElevenLabs key is deliberately not
// checked here because narration degrades gracefully without it.
func (c *Config) Validate() error {
	var problems []string
	if c.Gemini.APIKey == "" {
		problems = append(problems, "gemini.api_key is required (set GEMINI_API_KEY or gemini.api_key)")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB * 1024 * 1024
}

// SessionTTL returns how long idle sessions are kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMinutes) * time.Minute
}

// PollInterval returns the delay between file state checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gemini.PollIntervalSeconds) * time.Second
}

// ProcessingWarn returns how long remote processing may run before a
// slow-processing warning is surfaced.
func (c *Config) ProcessingWarn() time.Duration {
	return time.Duration(c.Gemini.ProcessingWarnSeconds) * time.Second
}

// GeminiTimeout returns the HTTP timeout for inference calls.
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}

// ElevenLabsTimeout returns the HTTP timeout for speech synthesis calls.
func (c *Config) ElevenLabsTimeout() time.Duration {
	return time.Duration(c.ElevenLabs.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates the upload directory tree.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir %s: %w", c.Server.UploadDir, err)
	}
	if c.Server.TempDir != "" {
		if err := os.MkdirAll(c.Server.TempDir, 0o755); err != nil {
			return fmt.Errorf("create temp dir %s: %w", c.Server.TempDir, err)
		}
	}
	return nil
}

// CreateSample writes the annotated sample configuration to path, refusing
// to overwrite an existing file.
func CreateSample(path string) error {
	path, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}

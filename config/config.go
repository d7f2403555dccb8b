// Package config loads raider's layered configuration: a small system
// config pointing at the data directory, a per-user TOML config inside
// it, and environment overrides on top.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ChatConfig struct {
	DefaultProvider       string `toml:"default_provider"`
	CheckpointCadence     int    `toml:"checkpoint_cadence"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type OllamaConfig struct {
	Host string `toml:"host"`
}

type SecurityConfig struct {
	Method     string `toml:"method"`
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	Chat     ChatConfig     `toml:"chat"`
	Ollama   OllamaConfig   `toml:"ollama"`
	Security SecurityConfig `toml:"security"`
}

// Config is the merged view handed to the rest of the application.
type Config struct {
	DataDirectory         string
	DefaultProvider       string
	CheckpointCadence     int
	RequestTimeoutSeconds int
	OllamaHost            string
	SecurityMethod        string
	SSHKeyPath            string
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("RAIDER_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if provider := os.Getenv("RAIDER_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if host := os.Getenv("RAIDER_OLLAMA_HOST"); host != "" {
		c.OllamaHost = host
	}
	if cadence := os.Getenv("RAIDER_CHECKPOINT_CADENCE"); cadence != "" {
		if n, err := strconv.Atoi(cadence); err == nil && n > 0 {
			c.CheckpointCadence = n
		}
	}
}

func CheckDebug() bool {
	debug := os.Getenv("RAIDER_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens debug.log in the data directory when RAIDER_DEBUG
// is set. Provider adapters log stream diagnostics through DebugLog.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: debug output can include prompt text
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (RAIDER_DEBUG=%s) ===", os.Getenv("RAIDER_DEBUG"))
}

// Load reads the system config, then the user config beneath the data
// directory, then applies environment overrides. Missing files are
// created from the defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:         "~/.local/share/raider",
		DefaultProvider:       "openai",
		CheckpointCadence:     100,
		RequestTimeoutSeconds: 300,
		OllamaHost:            "http://localhost:11434",
		SecurityMethod:        string(SecurityPlainText),
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory

	dataDir := cfg.DataDir()
	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if userCfg.Chat.DefaultProvider != "" {
		cfg.DefaultProvider = userCfg.Chat.DefaultProvider
	}
	if userCfg.Chat.CheckpointCadence > 0 {
		cfg.CheckpointCadence = userCfg.Chat.CheckpointCadence
	}
	if userCfg.Chat.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeoutSeconds = userCfg.Chat.RequestTimeoutSeconds
	}
	if userCfg.Ollama.Host != "" {
		cfg.OllamaHost = userCfg.Ollama.Host
	}
	if userCfg.Security.Method != "" {
		cfg.SecurityMethod = userCfg.Security.Method
	}
	cfg.SSHKeyPath = ExpandPath(userCfg.Security.SSHKeyPath)

	cfg.applyEnvOverrides()

	dataDir = cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Upload  UploadConfig  `json:"upload"`
	Planner PlannerConfig `json:"planner"`
	Output  OutputConfig  `json:"output"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// UploadConfig bounds what a single request may carry
type UploadConfig struct {
	MaxFiles      int   `json:"max_files"`
	MaxFileBytes  int64 `json:"max_file_bytes"`
	MaxTotalBytes int64 `json:"max_total_bytes"`
}

// PlannerConfig selects and bounds the external vision planner
type PlannerConfig struct {
	// Backend is "openrouter", "ollama" or "disabled"
	Backend     string  `json:"backend"`
	APIKey      string  `json:"-"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	TimeoutSecs int     `json:"timeout_secs"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// OutputConfig holds artifact directories
type OutputConfig struct {
	GeneratedDir string `json:"generated_dir"`
	DebugDir     string `json:"debug_dir"`
	KeepDebug    bool   `json:"keep_debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Upload: UploadConfig{
			MaxFiles:      8,
			MaxFileBytes:  10 << 20,
			MaxTotalBytes: 40 << 20,
		},
		Planner: PlannerConfig{
			Backend:     "disabled",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "",
			TimeoutSecs: 45,
			MaxTokens:   1200,
			Temperature: 0.1,
		},
		Output: OutputConfig{
			GeneratedDir: "./generated",
			DebugDir:     "./generated/debug",
			KeepDebug:    true,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from the environment. Secrets are only
// accepted this way, never from the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STICKERSMITH_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("STICKERSMITH_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("STICKERSMITH_PLANNER"); v != "" {
		c.Planner.Backend = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Planner.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		c.Planner.BaseURL = v
	}
	if v := os.Getenv("STICKERSMITH_MODEL"); v != "" {
		c.Planner.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.Planner.Backend == "ollama" {
		c.Planner.BaseURL = v
	}
	if v := os.Getenv("STICKERSMITH_GENERATED_DIR"); v != "" {
		c.Output.GeneratedDir = v
	}
}

// Timeout returns the planner timeout as a duration
func (c *PlannerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Upload.MaxFiles < 1 {
		return fmt.Errorf("upload.max_files must be positive")
	}

	if c.Upload.MaxFileBytes < 1 || c.Upload.MaxTotalBytes < c.Upload.MaxFileBytes {
		return fmt.Errorf("upload byte limits must be positive and max_total_bytes >= max_file_bytes")
	}

	switch c.Planner.Backend {
	case "openrouter":
		if c.Planner.APIKey == "" {
			return fmt.Errorf("planner.backend openrouter requires OPENROUTER_API_KEY")
		}
		if c.Planner.Model == "" {
			return fmt.Errorf("planner.backend openrouter requires a model")
		}
	case "ollama":
		if c.Planner.Model == "" {
			return fmt.Errorf("planner.backend ollama requires a model")
		}
	case "disabled":
	default:
		return fmt.Errorf("planner.backend must be openrouter, ollama or disabled")
	}

	if c.Planner.TimeoutSecs < 1 {
		return fmt.Errorf("planner.timeout_secs must be positive")
	}

	if c.Output.GeneratedDir == "" {
		return fmt.Errorf("output.generated_dir cannot be empty")
	}

	return nil
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, err
	}
	return port, nil
}

package manager

import (
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"

	"navtile/builder"
)

// LogConfig configures the rolling file logger of the navtool binary.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	Console    bool   `json:"console"`
}

// Config is the on-disk configuration, parsed from hjson so deployments
// can carry comments.
type Config struct {
	Settings builder.Settings `json:"settings"`
	CacheDir string           `json:"cacheDir"`
	Log      LogConfig        `json:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Settings: builder.DefaultSettings(),
		CacheDir: "navcache",
		Log: LogConfig{
			File:       "",
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 3,
			Console:    true,
		},
	}
}

// LoadConfig reads an hjson configuration file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := hjson.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

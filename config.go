package lumen

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the embedder-facing engine configuration. Zero values are
// replaced by DefaultConfig values when loaded from a file.
type Config struct {
	WindowWidth  int        `toml:"window_width"`
	WindowHeight int        `toml:"window_height"`
	WindowTitle  string     `toml:"window_title"`
	VSync        bool       `toml:"vsync"`
	Debug        bool       `toml:"debug"`
	ClearColor   [4]float64 `toml:"clear_color"`
}

func DefaultConfig() Config {
	return Config{
		WindowWidth:  1280,
		WindowHeight: 720,
		WindowTitle:  "lumen",
		VSync:        true,
		ClearColor:   [4]float64{0.1, 0.2, 0.3, 1.0},
	}
}

// LoadConfig reads a TOML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		return cfg, fmt.Errorf("config %s: window size must be positive", path)
	}
	return cfg, nil
}

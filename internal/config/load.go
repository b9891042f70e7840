package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const fileName = "fbxio.yaml"

// Load loads configuration with priority: defaults < file < flags.
func Load(f *Flags) (*Config, error) {
	cfg := Default()

	path := ""
	if f != nil {
		path = f.ConfigPath
	}
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	if f != nil {
		f.apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no backend can honour.
func (c *Config) Validate() error {
	switch c.Library.Backend {
	case BackendNative:
		if c.Library.Path == "" {
			return fmt.Errorf("library.path is required for the native backend")
		}
	case BackendGltf:
	default:
		return fmt.Errorf("unknown library backend %q", c.Library.Backend)
	}
	switch c.Export.Format {
	case "binary", "ascii":
	default:
		return fmt.Errorf("unknown export format %q", c.Export.Format)
	}
	if c.Export.UnitScale <= 0 {
		return fmt.Errorf("export.unit_scale must be positive, got %v", c.Export.UnitScale)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./" + fileName,
		filepath.Join(ConfigDir(), fileName),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "fbxio")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "fbxio")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "fbxio")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "fbxio")
	}
}

// loadFromFile merges the YAML file at path over cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

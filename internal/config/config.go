// Package config holds the exporter settings shared by the fbxio commands.
package config

// Config holds all exporter settings.
type Config struct {
	Library  LibraryConfig  `yaml:"library"`
	Export   ExportConfig   `yaml:"export"`
	Encoding EncodingConfig `yaml:"encoding"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LibraryConfig selects the backend that writes files.
type LibraryConfig struct {
	Backend          string `yaml:"backend"` // "native" or "gltf"
	Path             string `yaml:"path"`    // shared library, native backend only
	DiagnosticResult bool   `yaml:"diagnostic_result"`
}

// ExportConfig holds per-export options.
type ExportConfig struct {
	Format                string  `yaml:"format"` // "binary" or "ascii"
	UnitScale             float64 `yaml:"unit_scale"`
	OneBasedMaterialSlots bool    `yaml:"one_based_material_slots"`
	FlipYZ                bool    `yaml:"flip_yz"`
}

// EncodingConfig names the byte encodings used across the library boundary.
type EncodingConfig struct {
	Names string `yaml:"names"`
	Paths string `yaml:"paths"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

const (
	BackendNative = "native"
	BackendGltf   = "gltf"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Library: LibraryConfig{
			Backend: BackendGltf,
		},
		Export: ExportConfig{
			Format:    "binary",
			UnitScale: 1.0,
		},
		Encoding: EncodingConfig{
			Names: "utf-8",
			Paths: "utf-8",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

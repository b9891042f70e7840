package config

import "flag"

// Flags are the command line overrides shared by every subcommand.
type Flags struct {
	ConfigPath string
	Debug      bool
	Backend    string
	Library    string
	Format     string
	UnitScale  float64
	FlipYZ     bool
	LogFile    string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Backend, "backend", "", "Library backend: native or gltf")
	fs.StringVar(&f.Library, "lib", "", "Path to the native exporter library")
	fs.StringVar(&f.Format, "format", "", "Output format: binary or ascii")
	fs.Float64Var(&f.UnitScale, "unit-scale", 0, "Scene unit length in metres")
	fs.BoolVar(&f.FlipYZ, "flip-yz", false, "Convert Z-up scenes to Y-up (gltf backend)")
	fs.StringVar(&f.LogFile, "log", "", "Also write logs to this file")
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Library != "" {
		cfg.Library.Path = f.Library
		if f.Backend == "" {
			cfg.Library.Backend = BackendNative
		}
	}
	if f.Backend != "" {
		cfg.Library.Backend = f.Backend
	}
	if f.Format != "" {
		cfg.Export.Format = f.Format
	}
	if f.UnitScale > 0 {
		cfg.Export.UnitScale = f.UnitScale
	}
	if f.FlipYZ {
		cfg.Export.FlipYZ = true
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
}

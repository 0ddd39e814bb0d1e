package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// ConfigFileName is the project config file name.
const ConfigFileName = ".lightdb.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Codec         string    `json:"codec"`
	EnvelopeCodec string    `json:"envelope_codec"`
	Encrypted     bool      `json:"encrypted"`
	LogLevel      string    `json:"log_level"`
	KDF           KDFConfig `json:"kdf"`

	// Resolved (computed, not serialized)
	EffectiveCwd string        `json:"-"`
	Sources      ConfigSources `json:"-"`
}

// KDFConfig sets the Argon2id cost for new encrypted files and password changes.
type KDFConfig struct {
	MemoryKiB uint32 `json:"memory_kib"`
	Time      uint32 `json:"time"`
	Threads   uint8  `json:"threads"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// fileConfig is the on-disk shape. Pointers distinguish "unset" from zero.
type fileConfig struct {
	Codec         *string `json:"codec"`
	EnvelopeCodec *string `json:"envelope_codec"`
	Encrypted     *bool   `json:"encrypted"`
	LogLevel      *string `json:"log_level"`
	KDF           *struct {
		MemoryKiB *uint32 `json:"memory_kib"`
		Time      *uint32 `json:"time"`
		Threads   *uint8  `json:"threads"`
	} `json:"kdf"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	kdf := lightdb.DefaultKDFParams()

	return Config{
		Codec:         "json",
		EnvelopeCodec: "cbor",
		LogLevel:      "warn",
		KDF: KDFConfig{
			MemoryKiB: kdf.Memory,
			Time:      kdf.Time,
			Threads:   kdf.Threads,
		},
	}
}

// ConfigOverrides are values set by global flags. Empty or nil means unset.
type ConfigOverrides struct {
	Codec     string
	Encrypted *bool
	LogLevel  string
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       ConfigOverrides   // global flag values
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/lightdb/config.json or ~/.config/lightdb/config.json)
// 3. Project config file (.lightdb.json in the working directory, if it exists)
// 4. Explicit config file via ConfigPath (replaces the project file)
// 5. Flag overrides.
//
// Config files are JSONC: comments and trailing commas are allowed.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		fc, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, fc)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	fc, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, fc)
		cfg.Sources.Project = projectPath
	}

	if input.Overrides.Codec != "" {
		cfg.Codec = input.Overrides.Codec
	}

	if input.Overrides.Encrypted != nil {
		cfg.Encrypted = *input.Overrides.Encrypted
	}

	if input.Overrides.LogLevel != "" {
		cfg.LogLevel = input.Overrides.LogLevel
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// globalConfigPath uses $XDG_CONFIG_HOME/lightdb/config.json if set,
// otherwise ~/.config/lightdb/config.json. Empty if neither is known.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "lightdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "lightdb", "config.json")
	}

	return ""
}

// loadConfigFile reads path. If mustExist is false a missing file is not an error.
func loadConfigFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return fileConfig{}, false, nil
		}

		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	fc, err := parseConfig(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return fc, true, nil
}

func parseConfig(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func mergeConfig(base Config, overlay fileConfig) Config {
	if overlay.Codec != nil {
		base.Codec = *overlay.Codec
	}

	if overlay.EnvelopeCodec != nil {
		base.EnvelopeCodec = *overlay.EnvelopeCodec
	}

	if overlay.Encrypted != nil {
		base.Encrypted = *overlay.Encrypted
	}

	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}

	if kdf := overlay.KDF; kdf != nil {
		if kdf.MemoryKiB != nil {
			base.KDF.MemoryKiB = *kdf.MemoryKiB
		}

		if kdf.Time != nil {
			base.KDF.Time = *kdf.Time
		}

		if kdf.Threads != nil {
			base.KDF.Threads = *kdf.Threads
		}
	}

	return base
}

func validateConfig(cfg Config) error {
	if _, err := lightdb.CodecByName(cfg.Codec); err != nil {
		return fmt.Errorf("%w: codec: %w", ErrConfigInvalid, err)
	}

	if _, err := lightdb.CodecByName(cfg.EnvelopeCodec); err != nil {
		return fmt.Errorf("%w: envelope_codec: %w", ErrConfigInvalid, err)
	}

	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrConfigInvalid, err)
	}

	if err := cfg.kdfParams().Validate(); err != nil {
		return fmt.Errorf("%w: kdf: %w", ErrConfigInvalid, err)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(s))

	return level, err
}

func (cfg Config) kdfParams() lightdb.KDFParams {
	return lightdb.KDFParams{
		Memory:  cfg.KDF.MemoryKiB,
		Time:    cfg.KDF.Time,
		Threads: cfg.KDF.Threads,
	}
}

// resolve makes path absolute relative to the effective working directory.
func (cfg Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(cfg.EffectiveCwd, path)
}

// storeOptions builds plaintext store options. Codec names were validated
// by LoadConfig.
func (cfg Config) storeOptions(logger *slog.Logger) lightdb.Options {
	codec, _ := lightdb.CodecByName(cfg.Codec)

	return lightdb.Options{Codec: codec, Logger: logger}
}

// encryptedOptions builds encrypted store options.
func (cfg Config) encryptedOptions(logger *slog.Logger) lightdb.EncryptedOptions {
	envelope, _ := lightdb.CodecByName(cfg.EnvelopeCodec)

	return lightdb.EncryptedOptions{
		Options:       cfg.storeOptions(logger),
		KDF:           cfg.kdfParams(),
		EnvelopeCodec: envelope,
	}
}

// codecOr returns the codec named by override, or the configured codec.
func (cfg Config) codecOr(override string) (lightdb.Codec, error) {
	if override == "" {
		override = cfg.Codec
	}

	return lightdb.CodecByName(override)
}

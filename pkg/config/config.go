package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ApkDisguise/pkg/pipeline"
	"ApkDisguise/pkg/prefix"
	"ApkDisguise/pkg/types"
)

// AppName names the per-user config and data directories
const AppName = "ApkDisguise"

// Config captures tool locations, signing credentials and runtime tuning.
type Config struct {
	Version   int             `yaml:"version"`
	Tools     ToolsConfig     `yaml:"tools"`
	Signing   SigningConfig   `yaml:"signing"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Prefixes  PrefixesConfig  `yaml:"prefixes"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Adb       AdbConfig       `yaml:"adb"`
	Logging   LoggingConfig   `yaml:"logging"`
	DataDir   string          `yaml:"data_dir"`
}

// ToolsConfig pins tool paths. Empty entries are resolved from Dir and PATH.
type ToolsConfig struct {
	Dir       string `yaml:"dir"`
	Java      string `yaml:"java"`
	Adb       string `yaml:"adb"`
	Apktool   string `yaml:"apktool"`
	Zipalign  string `yaml:"zipalign"`
	Apksigner string `yaml:"apksigner"`
	Keystore  string `yaml:"keystore"`
}

// SigningConfig holds the keystore credentials.
type SigningConfig struct {
	KeystorePass string `yaml:"keystore_pass"`
	KeyAlias     string `yaml:"key_alias"`
	KeyPass      string `yaml:"key_pass"`
}

// ManifestConfig sets the SDK levels declared in patched manifests.
type ManifestConfig struct {
	MinSdkVersion    int `yaml:"min_sdk_version"`
	TargetSdkVersion int `yaml:"target_sdk_version"`
}

// PrefixEntry is a curated prefix with its nominal weight.
type PrefixEntry struct {
	Prefix string `yaml:"prefix"`
	Count  int    `yaml:"count"`
}

// PrefixesConfig tunes the trusted prefix heuristic.
type PrefixesConfig struct {
	Recommended []PrefixEntry `yaml:"recommended"`
	Denylist    []string      `yaml:"denylist"`
	MinCount    int           `yaml:"min_count"`
}

// WorkspaceConfig controls where decompiled trees are written.
type WorkspaceConfig struct {
	WorkRoot string `yaml:"work_root"`
}

// AdbConfig rate-limits device bridge calls. Zero disables the limit.
type AdbConfig struct {
	CallsPerSecond float64 `yaml:"calls_per_second"`
	Burst          int     `yaml:"burst"`
}

// LoggingConfig mirrors the logger options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   *bool  `yaml:"compress,omitempty"`
}

// CompressValue returns the effective compress flag applying defaults.
func (l LoggingConfig) CompressValue() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// Default returns the baseline configuration.
func Default() Config {
	signing := pipeline.DefaultSigning()
	manifest := pipeline.DefaultManifest()

	recommended := make([]PrefixEntry, 0, len(prefix.DefaultRecommended))
	for _, p := range prefix.DefaultRecommended {
		recommended = append(recommended, PrefixEntry{Prefix: p.Prefix, Count: p.Count})
	}

	return Config{
		Version: 1,
		Signing: SigningConfig{
			KeystorePass: signing.KeystorePass,
			KeyAlias:     signing.KeyAlias,
			KeyPass:      signing.KeyPass,
		},
		Manifest: ManifestConfig{
			MinSdkVersion:    manifest.MinSdkVersion,
			TargetSdkVersion: manifest.TargetSdkVersion,
		},
		Prefixes: PrefixesConfig{
			Recommended: recommended,
			Denylist:    append([]string(nil), prefix.DefaultDenylist...),
			MinCount:    prefix.DefaultMinCount,
		},
		Adb: AdbConfig{
			CallsPerSecond: 0,
			Burst:          1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxAgeDays: 7,
			MaxBackups: 5,
			Compress:   boolPtr(true),
		},
	}
}

// DefaultDir returns <UserConfigDir>/ApkDisguise
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	// an unset key_pass follows keystore_pass
	cfg.Signing.KeyPass = ""
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills fields the YAML left zero.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Signing.KeystorePass == "" {
		c.Signing.KeystorePass = defaults.Signing.KeystorePass
	}
	if c.Signing.KeyAlias == "" {
		c.Signing.KeyAlias = defaults.Signing.KeyAlias
	}
	if c.Signing.KeyPass == "" {
		c.Signing.KeyPass = c.Signing.KeystorePass
	}
	if c.Manifest.MinSdkVersion == 0 {
		c.Manifest.MinSdkVersion = defaults.Manifest.MinSdkVersion
	}
	if c.Manifest.TargetSdkVersion == 0 {
		c.Manifest.TargetSdkVersion = defaults.Manifest.TargetSdkVersion
	}
	if c.Prefixes.Recommended == nil {
		c.Prefixes.Recommended = defaults.Prefixes.Recommended
	}
	if c.Prefixes.Denylist == nil {
		c.Prefixes.Denylist = defaults.Prefixes.Denylist
	}
	if c.Prefixes.MinCount == 0 {
		c.Prefixes.MinCount = defaults.Prefixes.MinCount
	}
	if c.Adb.Burst == 0 {
		c.Adb.Burst = defaults.Adb.Burst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = defaults.Logging.MaxAgeDays
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if c.Logging.Compress == nil {
		c.Logging.Compress = boolPtr(true)
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDir()
	}
}

// Validate rejects values that would make a run misbehave.
func (c Config) Validate() error {
	var problems []string
	if c.Manifest.MinSdkVersion < 1 || c.Manifest.TargetSdkVersion < c.Manifest.MinSdkVersion {
		problems = append(problems, fmt.Sprintf("manifest: invalid sdk range %d..%d",
			c.Manifest.MinSdkVersion, c.Manifest.TargetSdkVersion))
	}
	if c.Prefixes.MinCount < prefix.DefaultMinCount {
		problems = append(problems, fmt.Sprintf("prefixes.min_count must be at least %d", prefix.DefaultMinCount))
	}
	if len(c.Prefixes.Recommended) < len(prefix.DefaultRecommended) {
		problems = append(problems, fmt.Sprintf("prefixes.recommended needs at least %d entries", len(prefix.DefaultRecommended)))
	}
	for _, p := range c.Prefixes.Recommended {
		if _, ok := prefix.TwoSegment(p.Prefix); !ok {
			problems = append(problems, fmt.Sprintf("prefixes.recommended: %q is not a dotted prefix", p.Prefix))
		}
	}
	if c.Adb.CallsPerSecond < 0 {
		problems = append(problems, "adb.calls_per_second must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Heuristic converts the prefixes section.
func (c Config) Heuristic() prefix.Heuristic {
	recommended := make([]types.TrustedPrefix, 0, len(c.Prefixes.Recommended))
	for _, p := range c.Prefixes.Recommended {
		recommended = append(recommended, types.TrustedPrefix{
			Prefix: p.Prefix,
			Count:  p.Count,
			Source: types.SourceRecommended,
		})
	}
	return prefix.Heuristic{
		Denylist:    append([]string(nil), c.Prefixes.Denylist...),
		Recommended: recommended,
		MinCount:    c.Prefixes.MinCount,
	}
}

// PipelineSigning converts the signing section.
func (c Config) PipelineSigning() pipeline.Signing {
	return pipeline.Signing{
		KeystorePass: c.Signing.KeystorePass,
		KeyAlias:     c.Signing.KeyAlias,
		KeyPass:      c.Signing.KeyPass,
	}
}

// ManifestDefaults converts the manifest section.
func (c Config) ManifestDefaults() pipeline.ManifestDefaults {
	return pipeline.ManifestDefaults{
		MinSdkVersion:    c.Manifest.MinSdkVersion,
		TargetSdkVersion: c.Manifest.TargetSdkVersion,
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

// Save writes the configuration, creating parent directories.
func (c Config) Save(path string) error {
	buf, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

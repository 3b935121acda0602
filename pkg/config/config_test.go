package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ApkDisguise/pkg/types"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signing.KeystorePass != "123456" || cfg.Signing.KeyAlias != "my-alias" {
		t.Errorf("signing defaults = %+v", cfg.Signing)
	}
	if cfg.Manifest.MinSdkVersion != 19 || cfg.Manifest.TargetSdkVersion != 27 {
		t.Errorf("manifest defaults = %+v", cfg.Manifest)
	}
	if cfg.Prefixes.MinCount != 2 || len(cfg.Prefixes.Recommended) != 2 {
		t.Errorf("prefix defaults = %+v", cfg.Prefixes)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should default to the user config dir")
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := `
tools:
  dir: /opt/disguise/tools
signing:
  keystore_pass: secret
prefixes:
  min_count: 3
adb:
  calls_per_second: 5
logging:
  compress: false
`
	if err := os.WriteFile(path, []byte(yamlText), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Dir != "/opt/disguise/tools" {
		t.Errorf("Tools.Dir = %q", cfg.Tools.Dir)
	}
	if cfg.Signing.KeyPass != "secret" {
		t.Errorf("KeyPass should follow KeystorePass, got %q", cfg.Signing.KeyPass)
	}
	if cfg.Signing.KeyAlias != "my-alias" {
		t.Errorf("KeyAlias = %q", cfg.Signing.KeyAlias)
	}
	if cfg.Prefixes.MinCount != 3 {
		t.Errorf("MinCount = %d", cfg.Prefixes.MinCount)
	}
	if cfg.Adb.CallsPerSecond != 5 || cfg.Adb.Burst != 1 {
		t.Errorf("Adb = %+v", cfg.Adb)
	}
	if cfg.Logging.CompressValue() {
		t.Error("compress should be disabled")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"sdk range", "manifest:\n  min_sdk_version: 30\n  target_sdk_version: 21\n", "sdk range"},
		{"bad prefix", "prefixes:\n  recommended:\n    - prefix: nodots\n      count: 1\n", "nodots"},
		{"negative rate", "adb:\n  calls_per_second: -1\n", "calls_per_second"},
		{"min count one", "prefixes:\n  min_count: 1\n", "min_count must be at least 2"},
		{"empty recommended", "prefixes:\n  recommended: []\n", "recommended needs at least 2"},
		{"one recommended", "prefixes:\n  recommended:\n    - prefix: org.example\n      count: 7\n", "recommended needs at least 2"},
		{"bad yaml", "tools: [", "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestHeuristicConversion(t *testing.T) {
	cfg := Default()
	cfg.Prefixes.Recommended = []PrefixEntry{{Prefix: "org.example", Count: 7}, {Prefix: "org.sample", Count: 3}}
	h := cfg.Heuristic()

	if len(h.Recommended) != 2 || h.Recommended[0].Source != types.SourceRecommended {
		t.Fatalf("Recommended = %+v", h.Recommended)
	}
	got := h.Rank([]string{"net.foo.a", "net.foo.b"})
	if got[0].Prefix != "org.example" || got[1].Prefix != "org.sample" || got[2].Prefix != "net.foo" {
		t.Errorf("Rank = %+v", got)
	}
}

func TestLoadExplicitKeyPass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := "signing:\n  keystore_pass: outer\n  key_pass: inner\n"
	if err := os.WriteFile(path, []byte(yamlText), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signing.KeystorePass != "outer" || cfg.Signing.KeyPass != "inner" {
		t.Errorf("Signing = %+v", cfg.Signing)
	}
	if got := cfg.Signing.KeyAlias; got != "my-alias" {
		t.Errorf("KeyAlias = %q", got)
	}
}

func TestLoadWithoutSigningKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tools:\n  dir: /opt/tools\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signing.KeystorePass != "123456" || cfg.Signing.KeyPass != "123456" {
		t.Errorf("Signing = %+v", cfg.Signing)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Tools.Dir = "/srv/tools"
	cfg.ApplyDefaults()

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Tools.Dir != "/srv/tools" || loaded.DataDir != cfg.DataDir {
		t.Errorf("loaded = %+v", loaded)
	}
}

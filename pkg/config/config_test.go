package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}

	tests := []struct {
		name        string
		basePath    string
		targetPath  string
		shouldError bool
	}{
		{"valid path within base", tmpDir, subDir, false},
		{"same as base path", tmpDir, tmpDir, false},
		{"path traversal attempt", subDir, tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePath(tt.basePath, tt.targetPath)
			if tt.shouldError && err == nil {
				t.Error("want error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSanitizeDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		dataDir     string
		shouldError bool
	}{
		{"valid directory", filepath.Join(tmpDir, "data"), false},
		{"filesystem root", "/", true},
		{"system directory", "/etc", true},
		{"nested under system directory", "/etc/vidqr", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeDataDir(tt.dataDir)
			if tt.shouldError && err == nil {
				t.Error("want error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":6161" {
		t.Errorf("Server.Addr = %q, want :6161", cfg.Server.Addr)
	}
	if cfg.Server.BaseDir != "./data" {
		t.Errorf("Server.BaseDir = %q, want ./data", cfg.Server.BaseDir)
	}
	if cfg.Security.MaxFrameSize != 4*1024*1024 {
		t.Errorf("Security.MaxFrameSize = %d, want 4MiB", cfg.Security.MaxFrameSize)
	}
	if cfg.Security.RateLimit != 1000 {
		t.Errorf("Security.RateLimit = %d, want 1000", cfg.Security.RateLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text defaults", cfg.Logging)
	}
	if cfg.TLS.Enabled() {
		t.Error("TLS.Enabled() on default config, want false")
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	dataDir := filepath.Join(tmpDir, "data")

	content := `
server:
  addr: ":8080"
  base_dir: "` + dataDir + `"
  dim: 384
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.Dim != 384 {
		t.Errorf("Server.Dim = %d, want 384", cfg.Server.Dim)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	// Fields absent from the file keep DefaultConfig's values.
	if cfg.Security.RateLimit != 1000 {
		t.Errorf("Security.RateLimit = %d, want default 1000 preserved", cfg.Security.RateLimit)
	}
}

func TestLoadConfig_NotFound(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() on a missing file: want error, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  addr: [invalid\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if _, err := LoadConfig(configPath); err == nil {
		t.Error("LoadConfig() on invalid YAML: want error, got nil")
	}
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":9999"
	cfg.QR.ECC = "H"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", loaded.Server.Addr)
	}
	if loaded.ECCLevel() != 3 { // qr.ECCHigh
		t.Errorf("ECCLevel() = %v, want ECCHigh", loaded.ECCLevel())
	}
}

func TestConfig_ConversionHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cc := cfg.ToChunkConfig()
	if cc.ChunkSize != cfg.Chunk.ChunkSize || cc.OverlapSize != cfg.Chunk.OverlapSize {
		t.Errorf("ToChunkConfig() = %+v, want matching Chunk fields", cc)
	}
	hc := cfg.HNSWConfig()
	if hc.M != cfg.Index.M || hc.EfConstruction != cfg.Index.EfConstruction {
		t.Errorf("HNSWConfig() = %+v, want matching Index fields", hc)
	}
}

// Package config loads and validates the YAML configuration a vidqr
// server or CLI runs from. Grounded on the teacher's config package
// shape (a nested Config struct, DefaultConfig/LoadConfig/SaveConfig,
// and a path-traversal guard ahead of any data-directory use), reduced
// to this module's surface: no AuthConfig/APIKeyStore, since this
// protocol has no authentication layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vidqr/vidqr/pkg/chunk"
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/vectorindex"
)

// ServerConfig configures the TCP front end and the data directory
// every managed store is rooted under.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	BaseDir string `yaml:"base_dir"`
	Dim     int    `yaml:"dim"`
}

// IndexConfig configures the vector index every new store opens with.
type IndexConfig struct {
	Kernel        string `yaml:"kernel"` // "cosine", "dot", or "l2"
	FlatCrossover int    `yaml:"flat_crossover"`
	M             int    `yaml:"hnsw_m"`
	EfConstruction int   `yaml:"hnsw_ef_construction"`
	EfSearch      int    `yaml:"hnsw_ef_search"`
	Seed          int64  `yaml:"hnsw_seed"`
}

// ChunkConfig configures text splitting; mirrors chunk.Config so it can
// round-trip through YAML.
type ChunkConfig struct {
	ChunkSize         int  `yaml:"chunk_size"`
	OverlapSize       int  `yaml:"overlap_size"`
	PreserveSentences bool `yaml:"preserve_sentences"`
}

// VideoConfig configures the corpus container every Seal writes.
type VideoConfig struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
	Backend string `yaml:"backend"` // "kvid" or "ffmpeg"
}

// QRConfig configures the QR generator used to frame each chunk.
type QRConfig struct {
	Version int    `yaml:"version"`
	ECC     string `yaml:"ecc"` // "L", "M", "Q", "H"
}

// SecurityConfig bounds per-connection resource use. There is no
// AuthConfig here: this protocol carries no API-key layer.
type SecurityConfig struct {
	MaxFrameSize uint32        `yaml:"max_frame_size"`
	RateLimit    int           `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// TLSConfig optionally terminates TLS at the listener. Unlike the
// teacher's TLSConfig, there is no auto-cert/self-signed generation
// path here (see DESIGN.md) — a cert/key pair must be supplied, or TLS
// stays off.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both halves of a cert/key pair were given.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LoggingConfig mirrors pkg/logging.Config for YAML round-tripping.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// Config is the top-level document a YAML config file parses into.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Chunk    ChunkConfig    `yaml:"chunk"`
	Video    VideoConfig    `yaml:"video"`
	QR       QRConfig       `yaml:"qr"`
	Security SecurityConfig `yaml:"security"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig mirrors the teacher's DefaultConfig defaults where the
// concern carries over (security limits, logging), and picks this
// module's own sane defaults everywhere else.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":6161", BaseDir: "./data", Dim: 768},
		Index: IndexConfig{
			Kernel:         "cosine",
			FlatCrossover:  1000,
			M:              16,
			EfConstruction: 200,
			EfSearch:       0,
			Seed:           1,
		},
		Chunk: ChunkConfig{ChunkSize: 1000, OverlapSize: 100, PreserveSentences: true},
		Video: VideoConfig{Width: 256, Height: 256, FPS: 2, Backend: "kvid"},
		QR:    QRConfig{Version: 20, ECC: "M"},
		Security: SecurityConfig{
			MaxFrameSize: 4 * 1024 * 1024,
			RateLimit:    1000,
			RateBurst:    100,
			IdleTimeout:  300 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ToChunkConfig converts the YAML-facing ChunkConfig into chunk.Config.
func (c Config) ToChunkConfig() chunk.Config {
	return chunk.Config{
		ChunkSize:         c.Chunk.ChunkSize,
		OverlapSize:       c.Chunk.OverlapSize,
		PreserveSentences: c.Chunk.PreserveSentences,
	}
}

// HNSWConfig converts the YAML-facing IndexConfig into
// vectorindex.HNSWConfig.
func (c Config) HNSWConfig() vectorindex.HNSWConfig {
	return vectorindex.HNSWConfig{
		M:              c.Index.M,
		EfConstruction: c.Index.EfConstruction,
		EfSearch:       c.Index.EfSearch,
		ML:             vectorindex.DefaultHNSWConfig().ML,
		Seed:           c.Index.Seed,
	}
}

// ECCLevel parses QR.ECC into a qr.ECCLevel, defaulting to Medium on an
// unrecognized value.
func (c Config) ECCLevel() qr.ECCLevel {
	switch c.QR.ECC {
	case "L":
		return qr.ECCLow
	case "Q":
		return qr.ECCQuartile
	case "H":
		return qr.ECCHigh
	default:
		return qr.ECCMedium
	}
}

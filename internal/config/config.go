package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for seren.
type Config struct {
	TerminalID string           `toml:"terminal_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	API        APIConfig        `toml:"api"`
	Staging    StagingConfig    `toml:"staging"`
	Database   DatabaseConfig   `toml:"database"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Camera     CameraConfig     `toml:"camera"`
	Demo       DemoConfig       `toml:"demo"`
}

// DefaultTimeoutSeconds is the request timeout used when none is configured.
const DefaultTimeoutSeconds = 30

// APIConfig locates the Remote Access Service.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`        // e.g. https://access.example.com/api/capture
	TimeoutSeconds int    `toml:"timeout_seconds"` // per-request timeout; defaults to 30
}

// StagingConfig represents configuration for the capture staging area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type         string `toml:"type"`                  // "memory" (default) or "filesystem"
	StagingDir   string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxImageSize int64  `toml:"max_image_size"`        // per-image limit in bytes; defaults to 10MB
}

// DatabaseConfig represents configuration for the receipt journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents configuration for the receipt archive.
// An empty Type disables archiving.
type ArchiveConfig struct {
	Type    string `toml:"type"` // "", "memory", "filesystem" or "s3"
	Encrypt bool   `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for receipts.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// CameraConfig configures an external capture command. The command is run
// through the shell with {output} replaced by the path the image must be
// written to. Empty means images are always given as file paths.
type CameraConfig struct {
	Command string `toml:"command"`
}

// DemoConfig configures the bundled demo Remote Access Service.
type DemoConfig struct {
	Addr          string  `toml:"addr"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// NewConfig creates a new Config with the provided values and defaults
// derived from baseDir.
func NewConfig(terminalID, baseDir string) *Config {
	return &Config{
		TerminalID: terminalID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		API: APIConfig{
			BaseURL:        "http://localhost:3000/api/capture",
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Staging:  StagingConfig{Type: "memory"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "seren.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "seren.key"),
		},
		Demo: DemoConfig{Addr: "127.0.0.1:3000", RatePerSecond: 5, Burst: 10},
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.TerminalID == "" {
		return fmt.Errorf("terminal_id must be set")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}
	if c.Archive.Encrypt && c.Archive.Type == "" {
		return fmt.Errorf("archive.encrypt requires an archive type")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may hold S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

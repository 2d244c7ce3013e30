package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		TerminalID: "gate-1",
		BaseDir:    "/home/guard/.local/share/seren",
		LogDir:     "/home/guard/.local/share/seren/log",
		API:        APIConfig{BaseURL: "https://access.example.com/api/capture", TimeoutSeconds: 15},
		Staging:    StagingConfig{Type: "filesystem", StagingDir: "/tmp/seren", MaxImageSize: 2048},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/guard/.local/share/seren/db"},
		Archive: ArchiveConfig{
			Type:     "s3",
			Encrypt:  true,
			S3Bucket: "receipts",
			S3Prefix: "gates/",
			S3Region: "eu-west-1",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/keys/seren.pub",
			PrivateKeyPath: "/keys/seren.key",
		},
		Camera: CameraConfig{Command: "libcamera-still -o {output}"},
		Demo:   DemoConfig{Addr: "127.0.0.1:3000", RatePerSecond: 2.5, Burst: 4},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.TerminalID != original.TerminalID {
		t.Errorf("TerminalID = %q, want %q", got.TerminalID, original.TerminalID)
	}
	if got.API != original.API {
		t.Errorf("API = %+v, want %+v", got.API, original.API)
	}
	if got.Staging != original.Staging {
		t.Errorf("Staging = %+v, want %+v", got.Staging, original.Staging)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Archive != original.Archive {
		t.Errorf("Archive = %+v, want %+v", got.Archive, original.Archive)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Camera != original.Camera {
		t.Errorf("Camera = %+v, want %+v", got.Camera, original.Camera)
	}
	if got.Demo != original.Demo {
		t.Errorf("Demo = %+v, want %+v", got.Demo, original.Demo)
	}
}

func TestManager_Read_Partial(t *testing.T) {
	input := `
terminal_id = "gate-2"

[api]
base_url = "http://10.0.0.5:3000/api/capture"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.API.BaseURL != "http://10.0.0.5:3000/api/capture" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutSeconds != 0 {
		t.Errorf("API.TimeoutSeconds = %d, want 0 when unset", cfg.API.TimeoutSeconds)
	}
	if cfg.Archive.Type != "" {
		t.Errorf("Archive.Type = %q, want empty", cfg.Archive.Type)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("terminal_id = ")); err == nil {
		t.Error("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("gate-1", "/data/seren")

	if cfg.TerminalID != "gate-1" {
		t.Errorf("TerminalID = %q, want %q", cfg.TerminalID, "gate-1")
	}
	if cfg.LogDir != "/data/seren/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/seren/log")
	}
	if cfg.Database.DataDir != "/data/seren/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/seren/db")
	}
	if cfg.API.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("API.TimeoutSeconds = %d, want %d", cfg.API.TimeoutSeconds, DefaultTimeoutSeconds)
	}
	if cfg.Encryption.PublicKeyPath != "/data/seren/keys/seren.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing terminal id", mutate: func(c *Config) { c.TerminalID = "" }, wantErr: true},
		{name: "missing base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.API.TimeoutSeconds = -1 }, wantErr: true},
		{name: "encrypt without archive", mutate: func(c *Config) { c.Archive.Encrypt = true }, wantErr: true},
		{
			name: "encrypt with archive",
			mutate: func(c *Config) {
				c.Archive.Type = "memory"
				c.Archive.Encrypt = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("gate-1", "/data/seren")
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seren.toml")
	cfg := NewConfig("gate-1", "/data/seren")

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.TerminalID != "gate-1" {
		t.Errorf("TerminalID = %q, want %q", got.TerminalID, "gate-1")
	}

	if err := Init(path, cfg); err == nil {
		t.Error("Init() expected error when config already exists")
	}
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("ReadFromFile() expected error for missing file")
	}
}

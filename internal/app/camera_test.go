package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"seren/internal/capture"
	"seren/internal/config"
	"seren/internal/testutil"
)

func TestCamera_AcquireFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.jpg")
	want := testutil.JPEG("id")
	if err := os.WriteFile(path, want, 0644); err != nil {
		t.Fatal(err)
	}

	cam := NewCamera(config.CameraConfig{})
	data, source, err := cam.Acquire(context.Background(), capture.CapturePerson, "  "+path+"  ")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Acquire() data = %q", data)
	}
	if source != "id.jpg" {
		t.Errorf("source = %q, want id.jpg", source)
	}
}

func TestCamera_AcquireErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		path    string
		wantIs  error
	}{
		{name: "no path and no command", wantIs: ErrNoCamera},
		{name: "missing file", path: filepath.Join(t.TempDir(), "missing.jpg")},
		{name: "command fails", command: "exit 3"},
		{name: "command writes nothing", command: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.command != "" {
				requireShell(t)
			}
			cam := NewCamera(config.CameraConfig{Command: tt.command})
			_, _, err := cam.Acquire(context.Background(), capture.CapturePerson, tt.path)
			if err == nil {
				t.Fatal("Acquire() expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Acquire() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestCamera_AcquireFromCommand(t *testing.T) {
	requireShell(t)
	src := filepath.Join(t.TempDir(), "frame.png")
	want := testutil.PNG("plate")
	if err := os.WriteFile(src, want, 0644); err != nil {
		t.Fatal(err)
	}

	cam := NewCamera(config.CameraConfig{Command: "test {type} = vehicle && cp " + shellQuote(src) + " {output}"})
	if !cam.HasCommand() {
		t.Fatal("HasCommand() = false")
	}
	data, source, err := cam.Acquire(context.Background(), capture.CaptureVehicle, "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Acquire() data = %q", data)
	}
	if source != "camera" {
		t.Errorf("source = %q, want camera", source)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"seren/internal/capture"
	"seren/internal/config"
)

// ErrNoCamera is returned when no image path is given and no capture
// command is configured.
var ErrNoCamera = errors.New("Please enter an image path")

// Camera obtains captured images. An explicit file path is always read
// directly; otherwise the configured capture command is run.
type Camera struct {
	command string
}

// NewCamera creates a Camera from config.
func NewCamera(cfg config.CameraConfig) *Camera {
	return &Camera{command: strings.TrimSpace(cfg.Command)}
}

// HasCommand reports whether a capture command is configured.
func (c *Camera) HasCommand() bool {
	return c.command != ""
}

// Acquire returns the image bytes for t and a label describing where they
// came from. path may be empty to use the capture command.
func (c *Camera) Acquire(ctx context.Context, t capture.CaptureType, path string) ([]byte, string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading image: %w", err)
		}
		return data, filepath.Base(path), nil
	}
	if c.command == "" {
		return nil, "", ErrNoCamera
	}
	data, err := c.run(ctx, t)
	if err != nil {
		return nil, "", err
	}
	return data, "camera", nil
}

// run executes the capture command through the shell. {output} is replaced
// with the path the command must write the image to and {type} with the
// capture type.
func (c *Camera) run(ctx context.Context, t capture.CaptureType) ([]byte, error) {
	dir, err := os.MkdirTemp("", "seren-camera-")
	if err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, string(t)+".img")
	script := strings.NewReplacer("{output}", shellQuote(out), "{type}", string(t)).Replace(c.command)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture command failed: %w: %s", err, strings.TrimSpace(string(msg)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("capture command produced no image: %w", err)
	}
	return data, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

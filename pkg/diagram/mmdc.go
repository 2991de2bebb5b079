package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrRendererUnavailable is returned when the mermaid CLI cannot be found.
var ErrRendererUnavailable = errors.New("mermaid CLI (mmdc) not found")

// MMDC renders diagrams with the mermaid CLI.
type MMDC struct {
	// Path to the mmdc binary. Empty looks it up on PATH.
	Path string
	// Format is "svg" (default) or "png".
	Format string
	// Theme is passed to -t. Defaults to "dark".
	Theme string
}

func (m *MMDC) binary() (string, error) {
	name := m.Path
	if name == "" {
		name = "mmdc"
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	return p, nil
}

// Available reports whether the CLI can be executed.
func (m *MMDC) Available() bool {
	_, err := m.binary()
	return err == nil
}

// Render writes code to a temp file named after renderID and runs mmdc on it.
func (m *MMDC) Render(ctx context.Context, renderID, code string) ([]byte, error) {
	bin, err := m.binary()
	if err != nil {
		return nil, err
	}
	format := m.Format
	if format == "" {
		format = "svg"
	}
	theme := m.Theme
	if theme == "" {
		theme = "dark"
	}

	dir, err := os.MkdirTemp("", "ft-"+renderID+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, renderID+".mmd")
	out := filepath.Join(dir, renderID+"."+format)
	if err := os.WriteFile(in, []byte(code), 0644); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin, "-i", in, "-o", out, "-t", theme, "-b", "transparent", "-q")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("mmdc: %w", err)
		}
		return nil, fmt.Errorf("mmdc: %w: %s", err, msg)
	}
	return os.ReadFile(out)
}

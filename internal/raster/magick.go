package raster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// MagickTool shells out to the ImageMagick 7 binary.
type MagickTool struct {
	binary  string
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewMagick(binary string, timeout time.Duration) *MagickTool {
	if strings.TrimSpace(binary) == "" {
		binary = "magick"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MagickTool{binary: binary, timeout: timeout, run: runCommand}
}

func (m *MagickTool) Probe(ctx context.Context, path string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.run(ctx, m.binary, "identify", "-verbose", path)
	if err != nil {
		return Metadata{}, fmt.Errorf("identify %s: %w", path, err)
	}

	raw := parseVerbose(out)
	geometry, ok := raw["Geometry"]
	if !ok {
		return Metadata{}, fmt.Errorf("identify %s: %w", path, ErrNoGeometry)
	}
	width, height, err := ParseGeometry(geometry)
	if err != nil {
		return Metadata{}, fmt.Errorf("identify %s: %w", path, err)
	}
	return Metadata{Width: width, Height: height, Raw: raw}, nil
}

// Resize runs `magick src -resize N% dst`. Callers must not rely on the
// returned error alone; the output file is the real signal.
func (m *MagickTool) Resize(ctx context.Context, src, dst, percent string) error {
	if _, err := ParsePercent(percent); err != nil {
		return err
	}
	if !strings.HasSuffix(percent, "%") {
		percent += "%"
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.run(ctx, m.binary, src, "-resize", percent, dst); err != nil {
		return fmt.Errorf("resize %s: %w", src, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// parseVerbose flattens `identify -verbose` output. Nested sections are
// joined with '.', and the top-level "Image" section is dropped so the
// geometry lands under "Geometry".
func parseVerbose(out []byte) map[string]string {
	type section struct {
		indent int
		name   string
	}

	raw := make(map[string]string)
	var stack []section

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}

		var key, value string
		if strings.HasSuffix(trimmed, ":") {
			key = strings.TrimSuffix(trimmed, ":")
		} else {
			var found bool
			key, value, found = strings.Cut(trimmed, ": ")
			if !found {
				continue
			}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if value == "" {
			stack = append(stack, section{indent: indent, name: key})
			continue
		}
		if indent == 0 && key == "Image" {
			raw["Image"] = value
			stack = append(stack, section{indent: indent, name: key})
			continue
		}

		parts := make([]string, 0, len(stack)+1)
		for _, s := range stack {
			if s.indent == 0 && s.name == "Image" {
				continue
			}
			parts = append(parts, s.name)
		}
		parts = append(parts, key)
		raw[strings.Join(parts, ".")] = value
	}
	return raw
}

// Package raster holds the image capabilities the pipeline depends on:
// probing intrinsic geometry and resizing by percentage. Backends are
// interchangeable: the ImageMagick binary, a pure-Go implementation, or
// libvips when built with the govips tag.
package raster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMagick = "magick"
	BackendNative = "native"
	BackendGovips = "govips"
)

var (
	ErrNoGeometry         = errors.New("geometry not found in probe output")
	ErrInvalidGeometry    = errors.New("invalid geometry")
	ErrBackendUnavailable = errors.New("raster backend unavailable")
)

// Metadata is what a probe returns. Raw carries every attribute the backend
// reported, flattened to strings.
type Metadata struct {
	Width  float64
	Height float64
	Raw    map[string]string
}

type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Resizer writes a copy of src scaled by percent (formatted "25%") to dst.
type Resizer interface {
	Resize(ctx context.Context, src, dst, percent string) error
}

type Tool interface {
	Prober
	Resizer
}

type Config struct {
	Backend string
	Binary  string
	Timeout time.Duration
}

// New builds the configured backend.
func New(cfg Config) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMagick:
		return NewMagick(cfg.Binary, cfg.Timeout), nil
	case BackendNative:
		return NativeTool{}, nil
	case BackendGovips:
		return newLinkedTool()
	default:
		return nil, fmt.Errorf("unsupported raster backend: %s", cfg.Backend)
	}
}

// ParseGeometry parses "WxH" with an optional positional suffix such as
// "+0+0", which is dropped before splitting.
func ParseGeometry(geometry string) (width, height float64, err error) {
	g := strings.TrimSpace(geometry)
	if i := strings.IndexAny(g, "+-"); i >= 0 {
		g = g[:i]
	}
	w, h, found := strings.Cut(g, "x")
	if !found {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidGeometry, geometry)
	}
	width, err = strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: width in %q", ErrInvalidGeometry, geometry)
	}
	height, err = strconv.ParseFloat(h, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: height in %q", ErrInvalidGeometry, geometry)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: non-positive dimensions in %q", ErrInvalidGeometry, geometry)
	}
	return width, height, nil
}

// ParsePercent reads "25%" or "25" into a positive float.
func ParsePercent(percent string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(percent), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse resize percent %q: %w", percent, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("resize percent must be positive, got %q", percent)
	}
	return p, nil
}

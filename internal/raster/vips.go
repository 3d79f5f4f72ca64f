//go:build govips && cgo

package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
)

// VipsTool uses a linked libvips.
type VipsTool struct{}

func (VipsTool) Probe(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	img, err := vips.NewImageFromFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("load %s: %w", path, err)
	}
	defer img.Close()

	if img.Width() <= 0 || img.Height() <= 0 {
		return Metadata{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, img.Width(), img.Height())
	}

	raw := map[string]string{
		"Format":      vips.ImageTypes[img.Format()],
		"Geometry":    fmt.Sprintf("%dx%d+0+0", img.Width(), img.Height()),
		"Bands":       strconv.Itoa(img.Bands()),
		"Orientation": strconv.Itoa(img.Orientation()),
	}
	return Metadata{Width: float64(img.Width()), Height: float64(img.Height()), Raw: raw}, nil
}

func (VipsTool) Resize(ctx context.Context, src, dst, percent string) error {
	p, err := ParsePercent(percent)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := vips.NewImageFromFile(src)
	if err != nil {
		return fmt.Errorf("load %s: %w", src, err)
	}
	defer img.Close()

	if err := img.Resize(p/100, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}

	data, err := exportVips(img, filepath.Ext(dst))
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func exportVips(img *vips.ImageRef, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		data, _, err := img.ExportJpeg(vips.NewJpegExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case ".png":
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case ".webp":
		data, _, err := img.ExportWebp(vips.NewWebpExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output extension: %s", ext)
	}
}

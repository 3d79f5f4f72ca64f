package raster

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// NativeTool probes and resizes in-process with no external binaries.
type NativeTool struct{}

func (NativeTool) Probe(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Metadata{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, cfg.Width, cfg.Height)
	}

	raw := map[string]string{
		"Format":   format,
		"Geometry": fmt.Sprintf("%dx%d+0+0", cfg.Width, cfg.Height),
	}
	if info, err := f.Stat(); err == nil {
		raw["Filesize"] = strconv.FormatInt(info.Size(), 10)
	}
	return Metadata{Width: float64(cfg.Width), Height: float64(cfg.Height), Raw: raw}, nil
}

func (NativeTool) Resize(ctx context.Context, src, dst, percent string) error {
	p, err := ParsePercent(percent)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	width := int(math.Round(float64(img.Bounds().Dx()) * p / 100))
	if width < 1 {
		width = 1
	}
	resized := imaging.Resize(img, width, 0, imaging.Lanczos)

	if err := imaging.Save(resized, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("save %s: %w", dst, err)
	}
	return nil
}

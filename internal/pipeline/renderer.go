package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/rs/zerolog"
)

type RenderResult struct {
	Success bool
	Path    string
	Err     error
}

// Renderer drives the resize capability for one version. The output file's
// existence is the only success signal.
type Renderer struct {
	resizer raster.Resizer
	logger  zerolog.Logger
}

func NewRenderer(resizer raster.Resizer, logger zerolog.Logger) *Renderer {
	return &Renderer{resizer: resizer, logger: logger}
}

func (r *Renderer) Render(ctx context.Context, source domain.SourceImage, spec domain.VersionSpec, scale Scale, dst string) RenderResult {
	res := RenderResult{Path: dst}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		res.Err = fmt.Errorf("%w: create output dir: %v", ErrRender, err)
		return res
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		res.Err = fmt.Errorf("%w: clear stale output: %v", ErrRender, err)
		return res
	}

	r.logger.Debug().
		Str("version", spec.Name).
		Str("scale", scale.String()).
		Str("dst", dst).
		Msg("resizing")

	resizeErr := r.resizer.Resize(ctx, source.LocalPath, dst, scale.String())

	info, statErr := os.Stat(dst)
	if statErr != nil || info.IsDir() {
		if resizeErr == nil {
			resizeErr = errors.New("resize reported success")
		}
		res.Err = fmt.Errorf("%w: output %s missing: %v", ErrRender, dst, resizeErr)
		return res
	}
	if resizeErr != nil {
		r.logger.Warn().Err(resizeErr).Str("version", spec.Name).Msg("resize reported an error but output exists")
	}

	res.Success = true
	return res
}

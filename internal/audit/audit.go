// Package audit checks a local directory of images before upload: how many
// fall into each aspect group and whether each group fills whole batches.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dunamismax/derivatives/internal/aspect"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/rs/zerolog"
)

const DefaultBatchSize = 3

// GroupReport says how far a group's count is from a multiple of the batch
// size in either direction.
type GroupReport struct {
	Group     string `json:"group"`
	Count     int    `json:"count"`
	Even      bool   `json:"even"`
	Delete    int    `json:"delete,omitempty"`
	DeleteTo  int    `json:"delete_to,omitempty"`
	Add       int    `json:"add,omitempty"`
	AddTo     int    `json:"add_to,omitempty"`
	BatchSize int    `json:"batch_size"`
}

// Rejected is a file the audit could not place in a group.
type Rejected struct {
	File   string `json:"file"`
	Ratio  string `json:"ratio,omitempty"`
	Reason string `json:"reason"`
}

type Report struct {
	Dir      string        `json:"dir"`
	Scanned  int           `json:"scanned"`
	Groups   []GroupReport `json:"groups"`
	Rejected []Rejected    `json:"rejected"`
}

type Auditor struct {
	prober     raster.Prober
	classifier *aspect.Classifier
	batchSize  int
	pattern    string
	logger     zerolog.Logger
}

func New(prober raster.Prober, classifier *aspect.Classifier, batchSize int, pattern string, logger zerolog.Logger) (*Auditor, error) {
	if prober == nil {
		return nil, errors.New("prober is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if classifier == nil {
		classifier = aspect.NewClassifier(nil)
	}
	if pattern == "" {
		pattern = "*.jpg"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &Auditor{
		prober:     prober,
		classifier: classifier,
		batchSize:  batchSize,
		pattern:    pattern,
		logger:     logger,
	}, nil
}

// Run probes every matching file in dir. Files that fail to probe or do not
// classify are listed as rejected and excluded from the counts.
func (a *Auditor) Run(ctx context.Context, dir string) (Report, error) {
	files, err := filepath.Glob(filepath.Join(dir, a.pattern))
	if err != nil {
		return Report{}, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)

	labels := a.classifier.Labels()
	counts := make(map[string]int, len(labels))
	report := Report{Dir: dir, Scanned: len(files), Rejected: []Rejected{}}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		name := filepath.Base(path)

		meta, err := a.prober.Probe(ctx, path)
		if err != nil {
			a.logger.Warn().Err(err).Str("file", name).Msg("probe failed, skipping")
			report.Rejected = append(report.Rejected, Rejected{File: name, Reason: err.Error()})
			continue
		}

		ratio := aspect.RatioKey(meta.Width, meta.Height)
		group, ok := a.classifier.Classify(meta.Width, meta.Height)
		a.logger.Debug().
			Str("file", name).
			Float64("width", meta.Width).
			Float64("height", meta.Height).
			Str("ratio", ratio).
			Msg("probed")
		if !ok {
			a.logger.Warn().Str("file", name).Str("ratio", ratio).Msg("unclassified, skipping")
			report.Rejected = append(report.Rejected, Rejected{File: name, Ratio: ratio, Reason: "ratio not in classification table"})
			continue
		}
		counts[group]++
	}

	for _, label := range labels {
		report.Groups = append(report.Groups, Divisibility(label, counts[label], a.batchSize))
	}
	return report, nil
}

// Divisibility reports how many files to delete to reach the lower multiple
// of batch and how many to add to reach the next one.
func Divisibility(group string, count, batch int) GroupReport {
	r := GroupReport{Group: group, Count: count, BatchSize: batch}
	rem := count % batch
	if rem == 0 {
		r.Even = true
		return r
	}
	r.Delete = rem
	r.DeleteTo = count - rem
	r.Add = batch - rem
	r.AddTo = count + r.Add
	return r
}

// WriteText renders the report for a terminal.
func (r Report) WriteText(w io.Writer) error {
	const rule = "---------------------------------------------"
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("inspected %d files in %s\n", r.Scanned, r.Dir)
	for _, rej := range r.Rejected {
		if rej.Ratio != "" {
			printf("skipped %s: ratio %s is not in the classification table\n", rej.File, rej.Ratio)
		} else {
			printf("skipped %s: %s\n", rej.File, rej.Reason)
		}
	}
	printf("%s\n", rule)
	for _, g := range r.Groups {
		if g.Even {
			printf("%s: %d, evenly divisible by %d\n", g.Group, g.Count, g.BatchSize)
		} else {
			printf("%s: %d, not divisible by %d\n", g.Group, g.Count, g.BatchSize)
			printf("  delete %d to have %d, or add %d to have %d\n", g.Delete, g.DeleteTo, g.Add, g.AddTo)
		}
	}
	printf("%s\n", rule)
	return err
}

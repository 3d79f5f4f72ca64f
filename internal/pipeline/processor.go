package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/derivatives/internal/aspect"
	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/id"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/dunamismax/derivatives/internal/storage"
	"github.com/dunamismax/derivatives/internal/webhook"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sources and rendered outputs live in sibling directories so no source
// filename can collide with the output directory.
const (
	sourceSubdir = "src"
	outputSubdir = "out"
)

const (
	UnclassifiedLabel = "label"
	UnclassifiedSkip  = "skip"
)

type Config struct {
	WorkDir           string
	DestinationBucket string
	Versions          []domain.VersionSpec
	// UnclassifiedPolicy decides what happens to images whose ratio is not in
	// the table: "label" publishes them under the "unclassified" group, "skip"
	// publishes nothing.
	UnclassifiedPolicy string
}

type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, n webhook.Notification) (webhook.Result, error)
}

type Deps struct {
	Storage    storage.Client
	Prober     raster.Prober
	Resizer    raster.Resizer
	Classifier *aspect.Classifier
	Notifier   Notifier
	Logger     zerolog.Logger
}

// Result is the structured outcome of one invocation. Err is set only when
// the invocation aborted before any version ran.
type Result struct {
	InvocationID string                  `json:"invocation_id"`
	Source       domain.SourceObjectRef  `json:"source"`
	State        State                   `json:"state"`
	Aborted      bool                    `json:"aborted"`
	Err          error                   `json:"-"`
	Error        string                  `json:"error,omitempty"`
	Width        float64                 `json:"width,omitempty"`
	Height       float64                 `json:"height,omitempty"`
	AspectGroup  string                  `json:"aspect_group,omitempty"`
	Versions     []domain.VersionOutcome `json:"versions"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
}

// Status summarizes the result for logs and metrics.
func (r Result) Status() string {
	if r.Aborted {
		return domain.InvocationStatusAborted
	}
	var ok, failed int
	for _, v := range r.Versions {
		switch v.Status {
		case domain.VersionStatusSucceeded:
			ok++
		case domain.VersionStatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0 && ok > 0:
		return domain.InvocationStatusSucceeded
	case ok > 0:
		return domain.InvocationStatusPartial
	default:
		return domain.InvocationStatusFailed
	}
}

// Record converts the result into its stored form.
func (r Result) Record() domain.InvocationRecord {
	return domain.InvocationRecord{
		ID:          r.InvocationID,
		Bucket:      r.Source.Bucket,
		Key:         r.Source.Key,
		Status:      r.Status(),
		AspectGroup: r.AspectGroup,
		Width:       r.Width,
		Height:      r.Height,
		Error:       r.Error,
		Versions:    r.Versions,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

// Processor runs the derivative pipeline for one source object at a time.
// It holds no per-invocation state, so one Processor may serve concurrent
// invocations for different objects.
type Processor struct {
	cfg        Config
	fetcher    ObjectStoreFetcher
	prober     raster.Prober
	renderer   *Renderer
	publisher  *Publisher
	classifier *aspect.Classifier
	notifier   Notifier
	logger     zerolog.Logger
	tracer     trace.Tracer
	newID      func() string
}

func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	if deps.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if deps.Prober == nil || deps.Resizer == nil {
		return nil, errors.New("prober and resizer are required")
	}
	if strings.TrimSpace(cfg.DestinationBucket) == "" {
		return nil, errors.New("destination bucket is required")
	}
	if err := domain.ValidateVersions(cfg.Versions); err != nil {
		return nil, err
	}
	switch cfg.UnclassifiedPolicy {
	case "":
		cfg.UnclassifiedPolicy = UnclassifiedLabel
	case UnclassifiedLabel, UnclassifiedSkip:
	default:
		return nil, fmt.Errorf("unsupported unclassified policy: %s", cfg.UnclassifiedPolicy)
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		cfg.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	if deps.Classifier == nil {
		deps.Classifier = aspect.NewClassifier(nil)
	}

	return &Processor{
		cfg:        cfg,
		fetcher:    ObjectStoreFetcher{Storage: deps.Storage},
		prober:     deps.Prober,
		renderer:   NewRenderer(deps.Resizer, deps.Logger),
		publisher:  NewPublisher(deps.Storage, cfg.DestinationBucket, deps.Logger),
		classifier: deps.Classifier,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		tracer:     otel.Tracer("derivatives/pipeline"),
		newID:      id.New,
	}, nil
}

// invocation is created fresh for every Process call.
type invocation struct {
	id     string
	ref    domain.SourceObjectRef
	dir    string
	source domain.SourceImage
	group  string
	logger zerolog.Logger
	state  machine
}

// Process runs one invocation. It never panics or returns an error; every
// failure is reported in the Result.
func (p *Processor) Process(ctx context.Context, ref domain.SourceObjectRef) (result Result) {
	inv := &invocation{
		id:    p.newID(),
		ref:   ref,
		state: machine{state: StateIdle},
	}
	inv.logger = p.logger.With().
		Str("invocation_id", inv.id).
		Str("bucket", ref.Bucket).
		Str("key", ref.Key).
		Logger()

	result = Result{
		InvocationID: inv.id,
		Source:       ref,
		StartedAt:    time.Now().UTC(),
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.String("invocation.id", inv.id),
		attribute.String("source.bucket", ref.Bucket),
		attribute.String("source.key", ref.Key),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, rec)
			inv.logger.Error().Err(err).Msg("invocation panicked")
			if inv.state.state != StateDone {
				inv.state.fail(StateAborted)
				result.Aborted = true
				result.Err = err
			}
		}
		result.State = inv.state.state
		if result.Err != nil {
			result.Error = result.Err.Error()
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "aborted")
		}
		result.FinishedAt = time.Now().UTC()
		inv.logger.Info().
			Str("status", result.Status()).
			Int("versions", len(result.Versions)).
			Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
			Msg("invocation finished")
	}()

	defer p.cleanup(inv)

	if err := p.prepare(ctx, inv); err != nil {
		inv.logger.Error().Err(err).Msg("invocation aborted")
		inv.state.fail(StateAborted)
		result.Aborted = true
		result.Err = err
		return result
	}

	result.Width = inv.source.Width
	result.Height = inv.source.Height
	result.AspectGroup = inv.group
	span.SetAttributes(attribute.String("source.aspect_group", inv.group))

	if err := inv.state.to(StateVersioning); err != nil {
		result.Err = err
		result.Aborted = true
		return result
	}

	result.Versions = make([]domain.VersionOutcome, 0, len(p.cfg.Versions))
	for _, spec := range p.cfg.Versions {
		result.Versions = append(result.Versions, p.runVersion(ctx, inv, spec))
	}

	_ = inv.state.to(StateDone)
	return result
}

// prepare fetches and probes the source. Any error here aborts the
// invocation.
func (p *Processor) prepare(ctx context.Context, inv *invocation) error {
	if err := inv.state.to(StateFetching); err != nil {
		return err
	}
	if err := inv.ref.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}

	dir, err := os.MkdirTemp(p.cfg.WorkDir, sanitizePathToken(inv.ref.Filename())+"-")
	if err != nil {
		return fmt.Errorf("%w: create invocation dir: %v", ErrFetch, err)
	}
	inv.dir = dir

	srcDir := filepath.Join(dir, sourceSubdir)
	if err := os.Mkdir(srcDir, 0o755); err != nil {
		return fmt.Errorf("%w: create source dir: %v", ErrFetch, err)
	}
	localPath, err := p.fetcher.Fetch(ctx, inv.ref, srcDir)
	if err != nil {
		return err
	}
	inv.logger.Info().Str("path", localPath).Msg("source downloaded")

	if err := inv.state.to(StateProbing); err != nil {
		return err
	}
	meta, err := p.prober.Probe(ctx, localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProbe, err)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return fmt.Errorf("%w: non-positive geometry %vx%v", ErrProbe, meta.Width, meta.Height)
	}

	inv.source = domain.SourceImage{
		Ref:         inv.ref,
		LocalPath:   localPath,
		Width:       meta.Width,
		Height:      meta.Height,
		RawMetadata: meta.Raw,
	}

	label, ok := p.classifier.Classify(meta.Width, meta.Height)
	if !ok {
		inv.logger.Warn().
			Err(ErrUnclassified).
			Str("ratio", aspect.RatioKey(meta.Width, meta.Height)).
			Str("policy", p.cfg.UnclassifiedPolicy).
			Msg("source is unclassified")
		label = domain.AspectGroupUnclassified
	}
	inv.group = label

	inv.logger.Info().
		Float64("width", meta.Width).
		Float64("height", meta.Height).
		Str("aspect_group", label).
		Msg("source probed")
	return nil
}

func (p *Processor) cleanup(inv *invocation) {
	if inv.dir == "" {
		return
	}
	if err := os.RemoveAll(inv.dir); err != nil {
		inv.logger.Error().Err(err).Str("dir", inv.dir).Msg("remove invocation dir")
	}
}

// runVersion takes one version through plan, render, publish and notify.
// Nothing that happens here leaves the function as a panic or error.
func (p *Processor) runVersion(ctx context.Context, inv *invocation, spec domain.VersionSpec) (out domain.VersionOutcome) {
	logger := inv.logger.With().Str("version", spec.Name).Logger()
	vm := machine{state: StatePending}
	out = domain.VersionOutcome{Version: spec.Name, AspectGroup: inv.group}

	ctx, span := p.tracer.Start(ctx, "pipeline.version")
	span.SetAttributes(attribute.String("version.name", spec.Name))
	defer span.End()

	fail := func(err error) domain.VersionOutcome {
		out.Status = domain.VersionStatusFailed
		out.FailedStage = string(vm.state)
		out.Error = err.Error()
		vm.fail(StateVersionFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, out.FailedStage)
		logger.Error().Err(err).Str("stage", out.FailedStage).Msg("version failed")
		return out
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = fail(fmt.Errorf("%w: %v", ErrPanic, rec))
		}
	}()

	if inv.group == domain.AspectGroupUnclassified && p.cfg.UnclassifiedPolicy == UnclassifiedSkip {
		_ = vm.to(StateVersionSkipped)
		out.Status = domain.VersionStatusSkipped
		out.Error = ErrUnclassified.Error()
		logger.Warn().Msg("version skipped for unclassified source")
		return out
	}

	_ = vm.to(StatePlanning)
	scale, err := Plan(spec, inv.source.Width)
	if err != nil {
		return fail(err)
	}
	out.ScalePercent = scale.String()

	_ = vm.to(StateRendering)
	base, ext := inv.source.Filename()
	dst := filepath.Join(inv.dir, outputSubdir, domain.ArtifactFilename(base, inv.group, spec.Name, ext))
	rendered := p.renderer.Render(ctx, inv.source, spec, scale, dst)
	if !rendered.Success {
		return fail(rendered.Err)
	}

	_ = vm.to(StatePublishing)
	published, err := p.publisher.Publish(ctx, domain.DerivedArtifact{
		VersionName: spec.Name,
		LocalPath:   rendered.Path,
		AspectGroup: inv.group,
		Source:      inv.source,
	})
	out.DestinationKey = published.DestinationKey
	if err != nil {
		return fail(err)
	}

	if p.notifier != nil && p.notifier.Enabled() {
		_ = vm.to(StateNotifying)
		res, err := p.notifier.Notify(ctx, webhook.Notification{
			Version:     spec.Name,
			Basename:    base,
			AspectGroup: inv.group,
			Metadata:    inv.source.RawMetadata,
		})
		out.NotifyStatus = res.StatusCode
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrNotification, err))
		}
		out.Notified = true
		if res.Anomaly {
			logger.Warn().Int("status", res.StatusCode).Msg("notification returned an unexpected status")
		}
	}

	_ = vm.to(StateVersionSucceeded)
	out.Status = domain.VersionStatusSucceeded
	span.SetStatus(codes.Ok, "published")
	logger.Info().Str("destination_key", out.DestinationKey).Msg("version published")
	return out
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

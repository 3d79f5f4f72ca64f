package domain

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	InvocationStatusSucceeded = "succeeded"
	InvocationStatusPartial   = "partial"
	InvocationStatusFailed    = "failed"
	InvocationStatusAborted   = "aborted"

	VersionStatusSucceeded = "succeeded"
	VersionStatusFailed    = "failed"
	VersionStatusSkipped   = "skipped"

	AspectGroupUnclassified = "unclassified"
)

// SourceObjectRef identifies the object that triggered an invocation.
type SourceObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r SourceObjectRef) Validate() error {
	if strings.TrimSpace(r.Bucket) == "" {
		return errors.New("bucket name is required")
	}
	if strings.TrimSpace(r.Key) == "" || strings.HasSuffix(r.Key, "/") {
		return fmt.Errorf("object key is required: %q", r.Key)
	}
	if name := r.Filename(); name == "." || name == ".." {
		return fmt.Errorf("object key does not name a file: %q", r.Key)
	}
	return nil
}

// Filename is the last path segment of the object key.
func (r SourceObjectRef) Filename() string {
	return path.Base(r.Key)
}

func (r SourceObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// SourceImage is the local copy of a source object plus its probed geometry.
type SourceImage struct {
	Ref         SourceObjectRef
	LocalPath   string
	Width       float64
	Height      float64
	RawMetadata map[string]string
}

// Filename splits the local file name into its base and extension. The
// extension keeps its leading dot and original case.
func (s SourceImage) Filename() (base, ext string) {
	return SplitFilename(filepath.Base(s.LocalPath))
}

// SplitFilename separates the extension. A name whose only dot is the
// leading one, such as ".photo", has no extension.
func SplitFilename(filename string) (base, ext string) {
	ext = filepath.Ext(filename)
	if ext == filename {
		return filename, ""
	}
	return strings.TrimSuffix(filename, ext), ext
}

// ArtifactFilename is the deterministic derivative name
// {base}-{group}-{version}{ext}.
func ArtifactFilename(base, group, version, ext string) string {
	return fmt.Sprintf("%s-%s-%s%s", base, group, version, ext)
}

// VersionSpec is one configured derivative. Exactly one of TargetWidth or
// ScalePercent is set.
type VersionSpec struct {
	Name         string  `json:"name" yaml:"name"`
	TargetWidth  int     `json:"target_width,omitempty" yaml:"target_width,omitempty"`
	ScalePercent float64 `json:"scale_percent,omitempty" yaml:"scale_percent,omitempty"`
}

func (v VersionSpec) Validate() error {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return errors.New("version name is required")
	}
	if strings.ContainsAny(name, "/\\ ") {
		return fmt.Errorf("version %q: name must not contain separators or spaces", v.Name)
	}
	switch {
	case v.TargetWidth > 0 && v.ScalePercent > 0:
		return fmt.Errorf("version %q: target_width and scale_percent are mutually exclusive", v.Name)
	case v.TargetWidth < 0 || v.ScalePercent < 0:
		return fmt.Errorf("version %q: sizes must be positive", v.Name)
	case v.TargetWidth == 0 && v.ScalePercent == 0:
		return fmt.Errorf("version %q: one of target_width or scale_percent is required", v.Name)
	}
	return nil
}

// ValidateVersions checks each spec and rejects duplicate names, which would
// collide on destination keys.
func ValidateVersions(versions []VersionSpec) error {
	if len(versions) == 0 {
		return errors.New("at least one version is required")
	}
	seen := make(map[string]struct{}, len(versions))
	for i, v := range versions {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("versions[%d]: %w", i, err)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("versions[%d]: duplicate version name %q", i, v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}

// DerivedArtifact is one rendered version waiting to be published.
type DerivedArtifact struct {
	VersionName string
	LocalPath   string
	AspectGroup string
	Source      SourceImage
}

// Filename is also the destination key.
func (a DerivedArtifact) Filename() string {
	return filepath.Base(a.LocalPath)
}

type PublishResult struct {
	Artifact       DerivedArtifact
	DestinationKey string
	Succeeded      bool
}

// VersionOutcome is what an invocation reports for a single version.
type VersionOutcome struct {
	Version        string `json:"version"`
	Status         string `json:"status"`
	AspectGroup    string `json:"aspect_group,omitempty"`
	ScalePercent   string `json:"scale_percent,omitempty"`
	DestinationKey string `json:"destination_key,omitempty"`
	FailedStage    string `json:"failed_stage,omitempty"`
	Notified       bool   `json:"notified"`
	NotifyStatus   int    `json:"notify_status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// InvocationRecord is the stored summary of one finished invocation.
type InvocationRecord struct {
	ID          string           `json:"id"`
	Bucket      string           `json:"bucket"`
	Key         string           `json:"key"`
	Status      string           `json:"status"`
	AspectGroup string           `json:"aspect_group,omitempty"`
	Width       float64          `json:"width,omitempty"`
	Height      float64          `json:"height,omitempty"`
	Error       string           `json:"error,omitempty"`
	Versions    []VersionOutcome `json:"versions"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dunamismax/derivatives/internal/domain"
	"gopkg.in/yaml.v3"
)

const defaultVersions = "thumbnail=400"

type versionsFile struct {
	Versions []domain.VersionSpec `yaml:"versions"`
}

// loadVersions prefers VERSIONS_FILE, then the VERSIONS shorthand, then the
// single default thumbnail.
func loadVersions() ([]domain.VersionSpec, error) {
	if path := env("VERSIONS_FILE", ""); path != "" {
		return ReadVersionsFile(path)
	}
	return ParseVersions(env("VERSIONS", defaultVersions))
}

func ReadVersionsFile(path string) ([]domain.VersionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read versions file: %w", err)
	}
	var doc versionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode versions file %s: %w", path, err)
	}
	if err := domain.ValidateVersions(doc.Versions); err != nil {
		return nil, fmt.Errorf("versions file %s: %w", path, err)
	}
	return doc.Versions, nil
}

// ParseVersions reads the comma-separated shorthand "name=width" or
// "name=percent%", e.g. "thumbnail=400,medium=50%".
func ParseVersions(raw string) ([]domain.VersionSpec, error) {
	var versions []domain.VersionSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, size, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("version %q: expected name=size", part)
		}
		spec := domain.VersionSpec{Name: strings.TrimSpace(name)}
		size = strings.TrimSpace(size)
		if pct, isPercent := strings.CutSuffix(size, "%"); isPercent {
			v, err := strconv.ParseFloat(pct, 64)
			if err != nil {
				return nil, fmt.Errorf("version %q: invalid percent: %w", part, err)
			}
			spec.ScalePercent = v
		} else {
			v, err := strconv.Atoi(size)
			if err != nil {
				return nil, fmt.Errorf("version %q: invalid width: %w", part, err)
			}
			spec.TargetWidth = v
		}
		versions = append(versions, spec)
	}
	if err := domain.ValidateVersions(versions); err != nil {
		return nil, err
	}
	return versions, nil
}

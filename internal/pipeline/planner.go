package pipeline

import (
	"fmt"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Scale is a resize factor expressed as a percentage of the original width.
type Scale struct {
	Percent decimal.Decimal
}

// String formats the scale for the resize call, e.g. "25%".
func (s Scale) String() string {
	return s.Percent.String() + "%"
}

// Plan computes the scale for one version. Target-width versions use
// round((target/original)*100, 4); fixed-percent versions ignore geometry.
func Plan(spec domain.VersionSpec, originalWidth float64) (Scale, error) {
	if err := spec.Validate(); err != nil {
		return Scale{}, fmt.Errorf("%w: %v", ErrPlan, err)
	}

	if spec.ScalePercent > 0 {
		return Scale{Percent: decimal.NewFromFloat(spec.ScalePercent)}, nil
	}

	if originalWidth <= 0 {
		return Scale{}, fmt.Errorf("%w: original width must be positive, got %v", ErrPlan, originalWidth)
	}
	percent := decimal.NewFromInt(int64(spec.TargetWidth)).
		Div(decimal.NewFromFloat(originalWidth)).
		Mul(hundred).
		Round(4)
	if !percent.IsPositive() {
		return Scale{}, fmt.Errorf("%w: scale rounds to zero for width %v", ErrPlan, originalWidth)
	}
	return Scale{Percent: percent}, nil
}

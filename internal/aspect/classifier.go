// Package aspect maps image geometry to a discrete aspect group.
package aspect

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTable is keyed by the two-decimal ratio as printed ("1.0", not "1").
var DefaultTable = map[string]string{
	"0.8":  "portrait",
	"1.0":  "square",
	"1.25": "landscape",
}

// Classifier looks ratios up by exact string match. There is no tolerance: a
// ratio that does not round onto a table key is unclassified.
type Classifier struct {
	table map[string]string
}

func NewClassifier(table map[string]string) *Classifier {
	if len(table) == 0 {
		table = DefaultTable
	}
	copied := make(map[string]string, len(table))
	for k, v := range table {
		copied[k] = v
	}
	return &Classifier{table: copied}
}

// Classify returns the label for width/height, or ok=false when the rounded
// ratio has no entry.
func (c *Classifier) Classify(width, height float64) (label string, ok bool) {
	if width <= 0 || height <= 0 {
		return "", false
	}
	label, ok = c.table[RatioKey(width, height)]
	return label, ok
}

// Labels returns the distinct labels of the table, ordered by ascending
// ratio.
func (c *Classifier) Labels() []string {
	keys := make([]string, 0, len(c.table))
	for k := range c.table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := decimal.NewFromString(keys[i])
		b, errB := decimal.NewFromString(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a.LessThan(b)
	})

	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		label := c.table[k]
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

// RatioKey rounds width/height half-up to two decimals and formats it with at
// least one fractional digit.
func RatioKey(width, height float64) string {
	ratio := decimal.NewFromFloat(width).Div(decimal.NewFromFloat(height)).Round(2)
	key := ratio.String()
	if !strings.Contains(key, ".") {
		key += ".0"
	}
	return key
}

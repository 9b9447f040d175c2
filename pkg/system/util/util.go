// Package util holds small numeric and parsing helpers shared by the
// monitor and the command line.
package util

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EMA is an exponential moving average. The first sample passes through.
type EMA struct {
	alpha, prev float64
	ok          bool
}

func NewEMA(alpha float64) *EMA { return &EMA{alpha: alpha} }
func (e *EMA) Next(v float64) float64 {
	if !e.ok {
		e.prev, e.ok = v, true
		return v
	}
	e.prev = e.alpha*v + (1-e.alpha)*e.prev
	return e.prev
}

func SafeDiv(n, d float64) float64 {
	const eps = 1e-12
	if d > eps || d < -eps {
		return n / d
	}
	return 0
}

// NonNegative clamps counter deltas: a counter reset to zero between two
// samples must not show up as a negative rate.
func NonNegative(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

var sizeUnits = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a byte count with an optional binary suffix: "512",
// "64K", "10M", "2G". Suffixes are case-insensitive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	mult := int64(1)
	if m, ok := sizeUnits[strings.ToUpper(s[len(s)-1:])[0]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse size %q", s)
	}
	if n < 0 {
		return 0, errors.Errorf("negative size %q", s)
	}
	if n > math.MaxInt64/mult {
		return 0, errors.Errorf("size %q overflows", s)
	}
	return n * mult, nil
}

// ResolveThreshold turns a threshold expression into an absolute byte
// count. A leading '+' or '-' makes it relative to current.
func ResolveThreshold(expr string, current int64) (int64, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "+"):
		n, err := ParseSize(expr[1:])
		if err != nil {
			return 0, err
		}
		if current > math.MaxInt64-n {
			return 0, errors.Errorf("threshold %s overflows", expr)
		}
		return current + n, nil
	case strings.HasPrefix(expr, "-"):
		n, err := ParseSize(expr[1:])
		if err != nil {
			return 0, err
		}
		if n > current {
			return 0, errors.Errorf("threshold %s is below zero", expr)
		}
		return current - n, nil
	}
	return ParseSize(expr)
}

package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnknownCoverClass is returned for a class missing from a scale.
var ErrUnknownCoverClass = errors.New("unknown cover class")

// ErrUnparsableRange is returned when a range label cannot be read.
var ErrUnparsableRange = errors.New("unparsable range")

// CoverClassScale maps a cover class label to its percent cover midpoint.
// Labels are matched case-insensitively.
type CoverClassScale map[string]float64

// BraunBlanquet is the classic Braun-Blanquet scale with the extended
// 2m/2a/2b subdivisions.
var BraunBlanquet = CoverClassScale{
	"r":  0.1,
	"+":  0.5,
	"1":  2.5,
	"2":  15,
	"2m": 2.5,
	"2a": 8.75,
	"2b": 18.75,
	"3":  37.5,
	"4":  62.5,
	"5":  87.5,
}

// ScaleFromRanges builds a scale whose midpoints are the centers of the given
// [low, high] percent ranges.
func ScaleFromRanges(ranges map[string][2]float64) CoverClassScale {
	s := make(CoverClassScale, len(ranges))
	for class, r := range ranges {
		s[strings.ToLower(strings.TrimSpace(class))] = (r[0] + r[1]) / 2
	}
	return s
}

// Midpoint returns the percent cover midpoint for class.
func (s CoverClassScale) Midpoint(class string) (float64, error) {
	key := strings.ToLower(strings.TrimSpace(class))
	if v, ok := s[key]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCoverClass, class)
}

var rangeRe = regexp.MustCompile(`^\s*(<|>|≤|≥|<=|>=)?\s*(\d+(?:\.\d+)?)\s*(?:-\s*(\d+(?:\.\d+)?))?\s*[A-Za-z%]*\s*$`)

// RangeMidpoint reads a class label such as "10-29 cm" or "<10" and returns
// its midpoint. Integer ranges are inclusive, so "10-29" spans [10, 30) and
// yields 20; their midpoints are truncated to whole numbers ("50-74" yields
// 62). An upper-bounded label "<10" yields half the bound and a
// lower-bounded label ">75" yields the bound itself.
func RangeMidpoint(label string) (float64, error) {
	m := rangeRe.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRange, label)
	}
	low, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRange, label)
	}

	switch m[1] {
	case "<", "≤", "<=":
		return low / 2, nil
	case ">", "≥", ">=":
		return low, nil
	}

	if m[3] == "" {
		return low, nil
	}
	high, err := strconv.ParseFloat(m[3], 64)
	if err != nil || high < low {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRange, label)
	}
	if !strings.Contains(m[2]+m[3], ".") {
		return math.Floor((low + high + 1) / 2), nil
	}
	return (low + high) / 2, nil
}

package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Positional accuracy vocabulary.
const (
	AccuracyMappingGrade  = "mapping grade GPS"
	AccuracyConsumerGrade = "consumer grade GPS"
)

// mappingGradeMaxError is the horizontal error below which a fix is mapping grade.
const mappingGradeMaxError = 2.0

var (
	// ErrUnparsableDate is returned when no known layout matches.
	ErrUnparsableDate = errors.New("unparsable date")
	// ErrUnparsableBool is returned for values outside the boolean vocabulary.
	ErrUnparsableBool = errors.New("unparsable boolean")
	// ErrUnknownUnit is returned for an unsupported unit conversion.
	ErrUnknownUnit = errors.New("unknown unit")
)

// dateLayouts are tried in order. Spreadsheets export dates in whichever
// format the cell was formatted with.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"01-02-06",
	"1/2/06",
	"2006/01/02",
	"20060102",
	"02-Jan-2006",
	"January 2, 2006",
}

// ParseDate reads a date in any of the common export layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, s)
}

// FormatDate renders a date the way the templates expect.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// SiteVisitCode joins a site code and observation date.
func SiteVisitCode(siteCode string, observed time.Time) string {
	return siteCode + "_" + observed.Format("20060102")
}

// SurveyMonth reports whether t falls in the May through October field season.
func SurveyMonth(t time.Time) bool {
	return t.Month() >= time.May && t.Month() <= time.October
}

var boolValues = map[string]bool{
	"true": true, "t": true, "yes": true, "y": true, "1": true, "x": true,
	"false": false, "f": false, "no": false, "n": false, "0": false,
}

// RecodeBool maps common yes/no spellings to "TRUE" or "FALSE".
func RecodeBool(s string) (string, error) {
	v, ok := boolValues[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnparsableBool, s)
	}
	if v {
		return "TRUE", nil
	}
	return "FALSE", nil
}

// DeadStatus maps a recorded status to the dead_status vocabulary. Values in
// dead are dead; anything else, including a blank, is live.
func DeadStatus(value string, dead map[string]bool) string {
	if dead[strings.TrimSpace(value)] {
		return "TRUE"
	}
	return "FALSE"
}

// StructuralRule assigns Class when Pattern matches the descriptive text.
type StructuralRule struct {
	Pattern *regexp.Regexp
	Class   string
}

// CompileStructuralRules compiles pattern/class pairs in order. Patterns are
// case-insensitive.
func CompileStructuralRules(pairs [][2]string) ([]StructuralRule, error) {
	rules := make([]StructuralRule, 0, len(pairs))
	for _, p := range pairs {
		re, err := regexp.Compile("(?i)" + p[0])
		if err != nil {
			return nil, fmt.Errorf("compile structural rule %q: %w", p[0], err)
		}
		rules = append(rules, StructuralRule{Pattern: re, Class: p[1]})
	}
	return rules, nil
}

// ClassifyStructure returns the class of the first matching rule, or fallback.
func ClassifyStructure(rules []StructuralRule, text, fallback string) string {
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Class
		}
	}
	return fallback
}

// PositionalAccuracy classifies a GPS fix by its horizontal error in meters.
// A missing error (negative or the null sentinel) is reported as consumer grade.
func PositionalAccuracy(hErrorM float64) string {
	if hErrorM >= 0 && hErrorM < mappingGradeMaxError {
		return AccuracyMappingGrade
	}
	return AccuracyConsumerGrade
}

var toMeters = map[string]float64{
	"mm":  0.001,
	"cm":  0.01,
	"dm":  0.1,
	"m":   1,
	"km":  1000,
	"in":  0.0254,
	"ft":  0.3048,
	"yd":  0.9144,
	"hun": 0.01, // hundredths of a meter
}

// ConvertLength converts v between length units. The null sentinel passes
// through unchanged.
func ConvertLength(v float64, from, to string) (float64, error) {
	if v == NullNumber {
		return v, nil
	}
	f, ok := toMeters[strings.ToLower(from)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
	}
	t, ok := toMeters[strings.ToLower(to)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	return v * f / t, nil
}

// ParseNumber reads a numeric cell. Blank cells yield the null sentinel.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NullText) || strings.EqualFold(s, "NA") {
		return NullNumber, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return v, nil
}

// FormatNumber renders v without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	camelRe      = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	separatorsRe = regexp.MustCompile(`[\s\-]+`)
)

// NormalizeProjectCode turns a program's project label into a lower snake
// case code: "AK_CentralYukonFO_2022" → "ak_central_yukon_fo_2022".
func NormalizeProjectCode(s string) string {
	s = strings.TrimSpace(s)
	s = camelRe.ReplaceAllString(s, "${1}_${2}")
	s = separatorsRe.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Severity grades a QC finding.
type Severity string

// Severities, lowest first.
const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

func (s Severity) level() slog.Level {
	switch s {
	case SeverityError:
		return slog.LevelError
	case SeverityWarn:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Finding is one QC observation. Key identifies the offending record
// (site code, visit code, name) when there is one.
type Finding struct {
	Check    string
	Severity Severity
	Table    string
	Key      string
	Message  string
	Place    string
	MapURL   string
}

// ReportColumns is the header of a written QC report.
var ReportColumns = []string{"check", "severity", "table", "key", "message", "place", "map_url"}

// Record renders f in ReportColumns order.
func (f Finding) Record() []string {
	return []string{f.Check, string(f.Severity), f.Table, f.Key, f.Message, f.Place, f.MapURL}
}

// Report collects findings for one table.
type Report struct {
	Table    string
	Findings []Finding
}

// NewReport returns an empty report for table.
func NewReport(table string) *Report {
	return &Report{Table: table}
}

// Add records a finding.
func (r *Report) Add(check string, sev Severity, key, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Check:    check,
		Severity: sev,
		Table:    r.Table,
		Key:      key,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Append adds already built findings.
func (r *Report) Append(findings ...Finding) {
	r.Findings = append(r.Findings, findings...)
}

// Merge appends another report's findings.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Findings = append(r.Findings, other.Findings...)
}

// Count returns the number of findings with severity sev.
func (r *Report) Count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any finding is error-level.
func (r *Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Sorted returns findings ordered by severity (errors first), check and key.
func (r *Report) Sorted() []Finding {
	out := append([]Finding(nil), r.Findings...)
	rank := map[Severity]int{SeverityError: 0, SeverityWarn: 1, SeverityInfo: 2}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if rank[a.Severity] != rank[b.Severity] {
			return rank[a.Severity] < rank[b.Severity]
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.Key < b.Key
	})
	return out
}

// Log writes each finding at the level matching its severity, then a summary.
func (r *Report) Log(ctx context.Context, logger *slog.Logger) {
	for _, f := range r.Sorted() {
		logger.Log(ctx, f.Severity.level(), f.Message,
			"check", f.Check,
			"table", f.Table,
			"key", f.Key,
		)
	}
	logger.Info("qc summary",
		"table", r.Table,
		"errors", r.Count(SeverityError),
		"warnings", r.Count(SeverityWarn),
		"info", r.Count(SeverityInfo),
	)
}

// Project completion identifiers.
const (
	CompletionFinished = "1"
	CompletionOngoing  = "2"
)

// CompletionID maps a completion label ("finished", "ongoing") to its
// identifier. Identifiers and unknown labels pass through unchanged.
func CompletionID(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "finished":
		return CompletionFinished
	case "ongoing":
		return CompletionOngoing
	}
	return strings.TrimSpace(label)
}

// CheckProjectCompletion verifies that finished projects carry an end year
// and ongoing projects do not.
func CheckProjectCompletion(projectCode, completionID, yearEnd string) (string, bool) {
	ended := yearEnd != "" && yearEnd != FormatNumber(NullNumber)
	switch completionID {
	case CompletionFinished:
		if !ended {
			return fmt.Sprintf("project %s is finished but has no end year", projectCode), false
		}
	case CompletionOngoing:
		if ended {
			return fmt.Sprintf("project %s is ongoing but has end year %s", projectCode, yearEnd), false
		}
	}
	return "", true
}

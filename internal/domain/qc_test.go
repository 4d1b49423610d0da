package domain

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	r := NewReport("site_visit")
	r.Add("survey_month", SeverityWarn, "A_20230102", "visit observed in %s", "January")
	r.Add("unique", SeverityError, "A_20230716", "duplicate site visit code")
	r.Add("null", SeverityInfo, "", "no nulls")

	other := NewReport("site")
	other.Add("boundary", SeverityWarn, "A", "outside boundary")
	r.Merge(other)
	r.Merge(nil)

	assert.Equal(t, 1, r.Count(SeverityError))
	assert.Equal(t, 2, r.Count(SeverityWarn))
	assert.True(t, r.HasErrors())
	assert.Equal(t, "visit observed in January", r.Findings[0].Message)
	assert.Equal(t, "site_visit", r.Findings[0].Table)
	assert.Equal(t, "site", r.Findings[3].Table)

	sorted := r.Sorted()
	assert.Equal(t, SeverityError, sorted[0].Severity)
	assert.Equal(t, "boundary", sorted[1].Check)
	assert.Equal(t, SeverityInfo, sorted[3].Severity)
}

func TestReportLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewReport("site")
	r.Add("boundary", SeverityWarn, "YUK-001", "site outside boundary")
	r.Log(context.Background(), logger)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "key=YUK-001")
	assert.Contains(t, out, "qc summary")
	assert.Contains(t, out, "warnings=1")
}

func TestFindingRecord(t *testing.T) {
	f := Finding{Check: "range", Severity: SeverityError, Table: "vegetation_cover", Key: "A_1", Message: "cover 120"}
	assert.Equal(t, []string{"range", "error", "vegetation_cover", "A_1", "cover 120", "", ""}, f.Record())
	assert.Len(t, f.Record(), len(ReportColumns))
}

func TestCheckProjectCompletion(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		yearEnd    string
		ok         bool
	}{
		{"finished with end year", CompletionFinished, "2019", true},
		{"finished without end year", CompletionFinished, "-999", false},
		{"ongoing without end year", CompletionOngoing, "-999", true},
		{"ongoing with end year", CompletionOngoing, "2024", false},
		{"unknown completion", "3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := CheckProjectCompletion("aim_various_2023", tt.completion, tt.yearEnd)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				assert.Contains(t, msg, "aim_various_2023")
			}
		})
	}
}

func TestCompletionID(t *testing.T) {
	assert.Equal(t, CompletionFinished, CompletionID("Finished"))
	assert.Equal(t, CompletionOngoing, CompletionID(" ongoing "))
	assert.Equal(t, CompletionFinished, CompletionID("1"))
	assert.Equal(t, "abandoned", CompletionID("abandoned"))
}

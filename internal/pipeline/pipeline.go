package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/observability"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// ErrStrictQC is returned in strict mode when a run produced error-level
// findings. Nothing is loaded in that case.
var ErrStrictQC = errors.New("quality control failed")

// Input is everything a transformer works from.
type Input struct {
	Source   *table.Table
	Template []string
	Visits   *table.Table // processed site visit table, when configured
	Sites    *table.Table // processed site table, when configured
	Codes    map[string]string
	Refs     *reference.Snapshot
}

// Extractor reads the inputs of one target table.
type Extractor interface {
	Extract(ctx context.Context) (*Input, error)
}

// Transformer reshapes source rows into one target table and reports
// quality-control findings about the result.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, in *Input) (*table.Table, *domain.Report, error)
}

// Loader writes a finished table to one destination.
type Loader interface {
	Name() string
	Load(ctx context.Context, name string, t *table.Table) error
}

// Options tune a run.
type Options struct {
	// Strict fails the run before loading when QC found errors.
	Strict bool
	// ReportPath receives the QC findings as CSV when set.
	ReportPath string
	// MaxAttempts bounds load attempts per loader.
	MaxAttempts int
}

// Pipeline runs extract, transform, check and load once for one table.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loaders     []Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// Run processes the table. The QC report is returned even when the run
// fails after transforming.
func (p *Pipeline) Run(ctx context.Context) (*domain.Report, error) {
	start := time.Now()
	name := p.transformer.Name()
	logger := p.logger.With("table", name)

	in, err := p.extractor.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	p.metrics.RowsRead.WithLabelValues(name).Add(float64(in.Source.Len()))
	logger.Info("extracted source", "rows", in.Source.Len(), "template_columns", len(in.Template))

	out, report, err := p.transformer.Transform(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", name, err)
	}

	report.Log(ctx, logger)
	for _, sev := range []domain.Severity{domain.SeverityError, domain.SeverityWarn, domain.SeverityInfo} {
		p.metrics.Findings.WithLabelValues(name, string(sev)).Add(float64(report.Count(sev)))
	}
	if p.opts.ReportPath != "" {
		if err := WriteReport(p.opts.ReportPath, report); err != nil {
			return report, err
		}
		logger.Info("wrote qc report", "path", p.opts.ReportPath)
	}

	if p.opts.Strict && report.HasErrors() {
		return report, fmt.Errorf("%w: %s has %d error findings", ErrStrictQC, name, report.Count(domain.SeverityError))
	}

	final, err := out.Select(in.Template)
	if err != nil {
		return report, fmt.Errorf("match template for %s: %w", name, err)
	}

	for _, l := range p.loaders {
		if err := p.load(ctx, l, name, final); err != nil {
			return report, err
		}
	}

	p.metrics.RunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	logger.Info("run complete", "rows", final.Len(), "duration", time.Since(start))
	return report, nil
}

// load writes t with l, retrying with exponential backoff.
func (p *Pipeline) load(ctx context.Context, l Loader, name string, t *table.Table) error {
	// Start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		err = l.Load(ctx, name, t)
		if err == nil {
			p.metrics.RowsWritten.WithLabelValues(name, l.Name()).Add(float64(t.Len()))
			return nil
		}
		p.metrics.LoadErrors.WithLabelValues(name, l.Name()).Inc()
		p.logger.Error("load failed",
			"table", name,
			"sink", l.Name(),
			"attempt", attempt,
			"error", err,
		)
		if attempt == p.opts.MaxAttempts || !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("load %s to %s: %w", name, l.Name(), err)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// TracingConfig selects where spans go.
type TracingConfig struct {
	// Exporter is none or stdout. stdout writes one JSON span per line.
	Exporter string `yaml:"exporter" json:"exporter"`
	// File receives stdout spans. Empty uses traces.jsonl in the log directory.
	File string `yaml:"file" json:"file"`
	// SampleRatio is the fraction of root spans kept, 0 to 1.
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// DefaultTracingConfig keeps tracing off.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{Exporter: ExporterNone, SampleRatio: 1}
}

// Validate checks the exporter name and sample ratio.
func (c TracingConfig) Validate() error {
	switch strings.ToLower(c.Exporter) {
	case "", ExporterNone, ExporterStdout:
	default:
		return fmt.Errorf("tracing.exporter must be 'none' or 'stdout', got %s", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %g", c.SampleRatio)
	}
	return nil
}

// Tracing is an installed global tracer provider.
type Tracing struct {
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// SetupTracing installs the global tracer provider for cfg. With the none
// exporter nothing is installed and the returned Tracing is a no-op.
// defaultDir is where the span file goes when cfg.File is empty.
func SetupTracing(cfg TracingConfig, defaultDir, version string) (*Tracing, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exp := strings.ToLower(cfg.Exporter); exp == "" || exp == ExporterNone {
		return &Tracing{}, nil
	}

	path := cfg.File
	if path == "" {
		path = filepath.Join(defaultDir, "traces.jsonl")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "trialscope"),
		attribute.String("service.version", version),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	return &Tracing{provider: provider, out: f}, nil
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes pending spans, restores a no-op global provider and
// closes the span file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	err := t.provider.Shutdown(ctx)
	otel.SetTracerProvider(noop.NewTracerProvider())
	if t.out != nil {
		err = errors.Join(err, t.out.Close())
	}
	t.provider = nil
	return err
}

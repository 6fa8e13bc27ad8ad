package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// TextfileExporter bridges OTel instruments into a private Prometheus
// registry and writes it out in text exposition format on demand.
type TextfileExporter struct {
	registry *prometheus.Registry
	reader   sdkmetric.Reader
	path     string
}

// NewTextfileExporter creates an exporter that writes to path. Each call uses an
// independent registry so repeated initialization never hits collector conflicts.
func NewTextfileExporter(path string) (*TextfileExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &TextfileExporter{registry: registry, reader: exporter, path: path}, nil
}

// Reader returns the OTel reader to attach to a MeterProvider.
func (te *TextfileExporter) Reader() sdkmetric.Reader {
	return te.reader
}

// Write gathers the registry and atomically replaces the textfile.
func (te *TextfileExporter) Write() error {
	err := prometheus.WriteToTextfile(te.path, te.registry)
	if err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", te.path, err)
	}

	return nil
}

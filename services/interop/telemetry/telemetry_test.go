// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Traces: "none", Metrics: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "interopscan-test",
		Traces:      "stdout",
		Output:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("interopscan.test").Start(context.Background(), "unit-span")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "unit-span")
}

func TestSetup_PrometheusTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interopscan.prom")
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "interopscan-test",
		Metrics:     "prometheus",
		MetricsFile: path,
	})
	require.NoError(t, err)

	counter, err := otel.Meter("interopscan.test").Int64Counter("interopscan_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^interopscan_test_events(_total)?(\{[^}]*\})? 3$`, string(data))
}

func TestSetup_Errors(t *testing.T) {
	var nilCtx context.Context
	_, err := Setup(nilCtx, Config{})
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = Setup(context.Background(), Config{Traces: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Setup(context.Background(), Config{Metrics: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "interopscan_unit_total", Help: "unit"})
	reg.MustRegister(c)
	c.Inc()

	path := filepath.Join(t.TempDir(), "unit.prom")
	require.NoError(t, WriteTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "interopscan_unit_total 1")

	assert.Error(t, WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), reg))
}

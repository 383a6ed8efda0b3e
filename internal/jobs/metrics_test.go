package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("invoice:render_pdf").End(nil))
	boom := errors.New("gotenberg down")
	assert.ErrorIs(t, m.Track("invoice:render_pdf").End(boom), boom)
	assert.NoError(t, m.Track("invoice:render_pdf").End(ErrSkipped))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("invoice:render_pdf", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("invoice:render_pdf", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("invoice:render_pdf", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("invoice:render_pdf")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	assert.NoError(t, m.Track("x").End(ErrSkipped))
}

package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestFiscalMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFiscalMetrics(reg)

	m.IncSubmission("success")
	m.IncSubmission("success")
	m.IncSubmission("failed")
	m.SetStatusCount("queued", 7)

	subs := gatherMetric(t, reg, "fiscal_submissions_total")
	require.NotNil(t, subs)
	byOutcome := map[string]float64{}
	for _, metric := range subs.GetMetric() {
		byOutcome[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), byOutcome["success"])
	assert.Equal(t, float64(1), byOutcome["failed"])

	gauge := gatherMetric(t, reg, "fiscal_invoices")
	require.NotNil(t, gauge)
	require.Len(t, gauge.GetMetric(), 1)
	assert.Equal(t, float64(7), gauge.GetMetric()[0].GetGauge().GetValue())
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.IncUpload("order", "created")
	m.IncUpload("order", "replayed")
	m.IncReplayed()

	uploads := gatherMetric(t, reg, "sync_uploads_total")
	require.NotNil(t, uploads)
	assert.Len(t, uploads.GetMetric(), 2)

	replayed := gatherMetric(t, reg, "sync_replayed_total")
	require.NotNil(t, replayed)
	assert.Equal(t, float64(1), replayed.GetMetric()[0].GetCounter().GetValue())
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveDuration("nightly", time.Second)
	m.IncSuccess("nightly")
	m.IncFailure("nightly")

	empty := NewCronJobMetrics(nil)
	empty.IncSuccess("nightly")
}

func TestCronJobMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveDuration("stale_submissions", 250*time.Millisecond)
	m.IncSuccess("stale_submissions")

	success := gatherMetric(t, reg, "job_success")
	require.NotNil(t, success)
	assert.Equal(t, float64(1), success.GetMetric()[0].GetCounter().GetValue())

	duration := gatherMetric(t, reg, "job_duration_seconds")
	require.NotNil(t, duration)
	assert.Equal(t, uint64(1), duration.GetMetric()[0].GetHistogram().GetSampleCount())
}

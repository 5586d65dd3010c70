package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
	"github.com/assefaz/stockledger/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track(jobs.TaskDashboardWarmup)
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, tracker.End(nil))
	}
	for i := 0; i < 10; i++ {
		tracker := metrics.Track(jobs.TaskLedgerIntegrity)
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, tracker.End(nil))
	}
	for i := 0; i < 2; i++ {
		tracker := metrics.Track(jobs.TaskDashboardWarmup)
		require.Error(t, tracker.End(errors.New("redis timeout")))
	}
	metrics.AddDrift("sede", 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	success := metricValue(t, families, "stockledger_jobs_total", map[string]string{"job": jobs.TaskDashboardWarmup, "status": "success"})
	failure := metricValue(t, families, "stockledger_jobs_total", map[string]string{"job": jobs.TaskDashboardWarmup, "status": "failure"})
	require.GreaterOrEqual(t, success/(success+failure), 0.9, "warmup success ratio too low")

	require.Less(t, histogramMean(t, families, "stockledger_job_duration_seconds", map[string]string{"job": jobs.TaskLedgerIntegrity}), 2.0)
	require.Less(t, histogramMean(t, families, "stockledger_job_duration_seconds", map[string]string{"job": jobs.TaskDashboardWarmup}), 0.5)
	require.Equal(t, 3.0, metricValue(t, families, "stockledger_ledger_drift_total", map[string]string{"location": "sede"}))
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

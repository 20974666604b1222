package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
)

func TestFiscalGaugeJobSetsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	fiscalMetrics := metrics.NewFiscalMetrics(reg)
	repo := &fakeFiscalGaugeRepo{counts: map[enums.FiscalStatus]int64{
		enums.FiscalStatusQueued: 4,
		enums.FiscalStatusFailed: 1,
	}}

	job, err := NewFiscalGaugeJob(FiscalGaugeJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Metrics:    fiscalMetrics,
	})
	if err != nil {
		t.Fatalf("NewFiscalGaugeJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := gaugeValue(t, reg, "fiscal_invoices", "queued"); got != 4 {
		t.Fatalf("expected queued gauge 4, got %v", got)
	}
	if got := gaugeValue(t, reg, "fiscal_invoices", "failed"); got != 1 {
		t.Fatalf("expected failed gauge 1, got %v", got)
	}
	if got := gaugeValue(t, reg, "fiscal_invoices", "success"); got != 0 {
		t.Fatalf("expected success gauge 0, got %v", got)
	}
}

func TestFiscalGaugeJobPropagatesError(t *testing.T) {
	reg := prometheus.NewRegistry()
	job, err := NewFiscalGaugeJob(FiscalGaugeJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: &fakeFiscalGaugeRepo{err: errors.New("boom")},
		Metrics:    metrics.NewFiscalMetrics(reg),
	})
	if err != nil {
		t.Fatalf("NewFiscalGaugeJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue(metric, "status") == status {
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with status %s not found", name, status)
	return 0
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

type fakeFiscalGaugeRepo struct {
	counts map[enums.FiscalStatus]int64
	err    error
}

func (f *fakeFiscalGaugeRepo) CountByStatus(ctx context.Context) (map[enums.FiscalStatus]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

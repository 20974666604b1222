package metrics

import "github.com/prometheus/client_golang/prometheus"

// FiscalMetrics tracks invoice fiscal submission outcomes and backlog.
type FiscalMetrics struct {
	submissions *prometheus.CounterVec
	statusGauge *prometheus.GaugeVec
}

// NewFiscalMetrics registers the fiscal submission metrics.
func NewFiscalMetrics(reg prometheus.Registerer) *FiscalMetrics {
	if reg == nil {
		return &FiscalMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_submissions_total",
		Help: "Fiscal submission attempts by outcome.",
	}, []string{"outcome"})
	statusGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fiscal_invoices",
		Help: "Invoices by fiscal status.",
	}, []string{"status"})
	reg.MustRegister(submissions, statusGauge)
	return &FiscalMetrics{
		submissions: submissions,
		statusGauge: statusGauge,
	}
}

// IncSubmission counts a submission attempt with the given outcome.
func (f *FiscalMetrics) IncSubmission(outcome string) {
	if f == nil || f.submissions == nil {
		return
	}
	f.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetStatusCount records the current number of invoices in a fiscal status.
func (f *FiscalMetrics) SetStatusCount(status string, count float64) {
	if f == nil || f.statusGauge == nil {
		return
	}
	f.statusGauge.WithLabelValues(normalizeLabel(status)).Set(count)
}

// SyncMetrics tracks reconciliation traffic on the server side.
type SyncMetrics struct {
	uploads  *prometheus.CounterVec
	replayed prometheus.Counter
}

// NewSyncMetrics registers the sync upload metrics.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_uploads_total",
		Help: "Sync uploads by entity and result.",
	}, []string{"entity", "result"})
	replayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_replayed_total",
		Help: "Uploads recognized as retries of already-applied records.",
	})
	reg.MustRegister(uploads, replayed)
	return &SyncMetrics{
		uploads:  uploads,
		replayed: replayed,
	}
}

// IncUpload counts a processed upload for the given entity type.
func (s *SyncMetrics) IncUpload(entity, result string) {
	if s == nil || s.uploads == nil {
		return
	}
	s.uploads.WithLabelValues(normalizeLabel(entity), normalizeLabel(result)).Inc()
}

// IncReplayed counts an upload that matched an existing record.
func (s *SyncMetrics) IncReplayed() {
	if s == nil || s.replayed == nil {
		return
	}
	s.replayed.Inc()
}

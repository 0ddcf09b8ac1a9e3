// metrics публикует метрики циклов дайджеста в Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/go-news-digest/internal/pipeline"
)

const namespace = "digest"

// Metrics реализует pipeline.Recorder.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	sourceFailed  *prometheus.CounterVec
	items         *prometheus.CounterVec
	rotations     *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	knownItems    prometheus.Gauge
	fingerprints  prometheus.Gauge
	evicted       prometheus.Counter
}

// New регистрирует метрики в reg. Для /metrics по умолчанию -
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Finished digest cycles by result and final stage.",
		}, []string{"result", "stage"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Digest cycle wall time.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		sourceFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Sources that failed to fetch within a cycle.",
		}, []string{"source"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items passing through the cycle stages.",
		}, []string{"phase"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_advances_total",
			Help:      "Promotion rotation advances by selected entry.",
		}, []string{"promotion"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that produced a digest.",
		}),
		knownItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_items",
			Help:      "Identity keys currently remembered by dedup.",
		}),
		fingerprints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_fingerprints",
			Help:      "Content fingerprints remembered by dedup.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_items_total",
			Help:      "Identity keys dropped by retention.",
		}),
	}

	reg.MustRegister(
		m.cycles, m.cycleDuration, m.sourceFailed, m.items, m.rotations,
		m.lastSuccess, m.knownItems, m.fingerprints, m.evicted,
	)

	return m
}

func (m *Metrics) CycleFinished(kind pipeline.ResultKind, stage pipeline.Stage, d time.Duration) {
	m.cycles.WithLabelValues(string(kind), stage.String()).Inc()
	m.cycleDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	if kind == pipeline.ResultDigest {
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) SourceFailed(source string) { m.sourceFailed.WithLabelValues(source).Inc() }
func (m *Metrics) ItemsFetched(n int)         { m.items.WithLabelValues("fetched").Add(float64(n)) }
func (m *Metrics) ItemsNew(n int)             { m.items.WithLabelValues("new").Add(float64(n)) }
func (m *Metrics) EnrichFailed(n int)         { m.items.WithLabelValues("enrich_failed").Add(float64(n)) }
func (m *Metrics) ItemsAdmitted(n int)        { m.items.WithLabelValues("admitted").Add(float64(n)) }

func (m *Metrics) RotationAdvanced(name string) { m.rotations.WithLabelValues(name).Inc() }

// DedupSize обновляет размеры индексов дедупликации.
func (m *Metrics) DedupSize(keys, fingerprints int) {
	m.knownItems.Set(float64(keys))
	m.fingerprints.Set(float64(fingerprints))
}

// Evicted учитывает ключи, удалённые по сроку хранения.
func (m *Metrics) Evicted(n int) { m.evicted.Add(float64(n)) }

var _ pipeline.Recorder = (*Metrics)(nil)

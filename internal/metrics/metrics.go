package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Observer tracks cache and transform activity for the pipeline.
// The registry is local, there is no metrics server in this tool;
// counters are read back at the end of a run for reporting.
type Observer struct {
	registry *prometheus.Registry

	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
	TransformSec *prometheus.HistogramVec
}

// Pipeline is the process wide observer.
var Pipeline = NewObserver()

// NewObserver creates an observer with its own registry.
func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "galaxy",
				Name:      "cache_hits",
			}, []string{"kind"}),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "galaxy",
				Name:      "cache_misses",
			}, []string{"kind"}),
		TransformSec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "galaxy",
				Name:      "transform_duration_seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			}, []string{"kind"}),
	}
	o.registry.MustRegister(o.CacheHits, o.CacheMisses, o.TransformSec)
	return o
}

// Hit records a cache hit for the given transform kind.
func (o *Observer) Hit(kind string) {
	o.CacheHits.WithLabelValues(kind).Inc()
}

// Miss records a cache miss for the given transform kind.
func (o *Observer) Miss(kind string) {
	o.CacheMisses.WithLabelValues(kind).Inc()
}

// Observe records the duration of a transform computation in seconds.
func (o *Observer) Observe(kind string, seconds float64) {
	o.TransformSec.WithLabelValues(kind).Observe(seconds)
}

// Gather flattens the registry into metric-name_label -> value.
// Histograms report their sample count.
func (o *Observer) Gather() (map[string]float64, error) {
	families, err := o.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				key += "_" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

// Report logs the collected counters at the end of a run.
func (o *Observer) Report() {
	counts, err := o.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("could not gather pipeline metrics")
		return
	}
	event := log.Info()
	for k, v := range counts {
		event = event.Float64(k, v)
	}
	event.Msg("pipeline activity")
}

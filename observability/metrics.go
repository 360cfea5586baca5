package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tracksTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "transfork",
		Name:      "tracks_total",
		Help:      "Number of tracks currently held open.",
	})
	groupsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfork",
		Name:      "groups_received_total",
		Help:      "Groups received per track.",
	}, []string{"track"})
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfork",
		Name:      "cache_hits_total",
		Help:      "Track lookups served from the static table per track.",
	}, []string{"track"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfork",
		Name:      "cache_misses_total",
		Help:      "Track lookups forwarded to a router per track.",
	}, []string{"track"})
	catchupGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfork",
		Name:      "catchup_groups_total",
		Help:      "Groups skipped when a reader falls behind the writer, per track.",
	}, []string{"track"})
	subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "transfork",
		Name:      "subscribers",
		Help:      "Current subscriber count per track.",
	}, []string{"track"})
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transfork",
		Name:      "stage_latency_seconds",
		Help:      "Latency of a named pipeline stage, per track.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"track", "stage"})
)

// Recorder records per-track metrics. It is a no-op when metrics are
// disabled, so call sites don't need to branch on MetricsEnabled themselves.
type Recorder struct {
	track string
}

// NewRecorder builds a recorder bound to one track name.
func NewRecorder(track string) *Recorder {
	return &Recorder{track: track}
}

// GroupReceived counts one inbound group for this track.
func (r *Recorder) GroupReceived() {
	if !MetricsEnabled() {
		return
	}
	groupsReceived.WithLabelValues(r.track).Inc()
}

// CacheHit counts a Subscribe resolved from the static track table.
func (r *Recorder) CacheHit() {
	if !MetricsEnabled() {
		return
	}
	cacheHits.WithLabelValues(r.track).Inc()
}

// CacheMiss counts a Subscribe forwarded to a router.
func (r *Recorder) CacheMiss() {
	if !MetricsEnabled() {
		return
	}
	cacheMisses.WithLabelValues(r.track).Inc()
}

// Catchup counts n groups a reader skipped while falling behind the writer.
func (r *Recorder) Catchup(n int) {
	if !MetricsEnabled() {
		return
	}
	catchupGroups.WithLabelValues(r.track).Add(float64(n))
}

// IncSubscribers increments this track's subscriber gauge.
func (r *Recorder) IncSubscribers() {
	if !MetricsEnabled() {
		return
	}
	subscribers.WithLabelValues(r.track).Inc()
}

// DecSubscribers decrements this track's subscriber gauge.
func (r *Recorder) DecSubscribers() {
	if !MetricsEnabled() {
		return
	}
	subscribers.WithLabelValues(r.track).Dec()
}

// SetSubscribers sets this track's subscriber gauge to n.
func (r *Recorder) SetSubscribers(n int) {
	if !MetricsEnabled() {
		return
	}
	subscribers.WithLabelValues(r.track).Set(float64(n))
}

// LatencyObs returns an observer for a named pipeline stage, or nil when
// metrics are disabled.
func (r *Recorder) LatencyObs(stage string) prometheus.Observer {
	if !MetricsEnabled() {
		return nil
	}
	return stageLatency.WithLabelValues(r.track, stage)
}

// IncTracks increments the process-wide open-track gauge.
func IncTracks() {
	if !MetricsEnabled() {
		return
	}
	tracksTotal.Inc()
}

// DecTracks decrements the process-wide open-track gauge.
func DecTracks() {
	if !MetricsEnabled() {
		return
	}
	tracksTotal.Dec()
}

// Package metrics provides Prometheus metrics for go-decode-pipeline.
//
// The pipeline's stats engine is the source of truth; the collector maps
// periodic snapshots onto Prometheus counters and gauges. Counters are fed
// by delta so a snapshot can be replayed without double counting.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Panel 1: Session Overview
// =============================================================================

var (
	pipelineInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_info",
			Help: "Information about the decode session (value always 1)",
		},
		[]string{"version", "codec", "resolution", "mode"},
	)

	pipelineUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_uptime_seconds",
			Help: "Seconds since the session started",
		},
	)
)

// =============================================================================
// Panel 2: Frame Flow
// =============================================================================

var (
	framesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_frames_submitted_total",
			Help: "Total decode units accepted by the pipeline",
		},
	)

	framesDecodedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_frames_decoded_total",
			Help: "Total frames decoded and presented",
		},
	)

	framesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_frames_dropped_total",
			Help: "Total frames dropped (backpressure, push failure, render failure)",
		},
	)

	bytesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_bytes_submitted_total",
			Help: "Total compressed payload bytes accepted",
		},
	)

	receivedFPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_received_fps",
			Help: "Frames accepted per second over the last window",
		},
	)

	renderedFPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_rendered_fps",
			Help: "Frames presented per second over the last window",
		},
	)

	bitrateKbps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_bitrate_kbps",
			Help: "Incoming stream bitrate over the last window",
		},
	)

	bitrate60sKbps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_bitrate_60s_kbps",
			Help: "Incoming stream bitrate averaged over the last 60 seconds",
		},
	)
)

// =============================================================================
// Panel 3: Decode Latency
// =============================================================================

var (
	decodeTimeMilliseconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "decode_pipeline_decode_time_milliseconds",
			Help: "Per-frame submit-to-decode latency distribution",
			Buckets: []float64{
				0.5, 1, 2, 4, 8,
				16, 33, 66,
				100, 250, 500, 1000,
			},
		},
	)

	decodeTimeAvgMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_decode_time_avg_milliseconds",
			Help: "Keyframe-weighted moving average decode time",
		},
	)

	decodeTimeMaxMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_decode_time_max_milliseconds",
			Help: "Maximum decode time observed",
		},
	)

	decodeTimeP50Ms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_decode_time_p50_milliseconds",
			Help: "Decode time 50th percentile (median)",
		},
	)

	decodeTimeP95Ms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_decode_time_p95_milliseconds",
			Help: "Decode time 95th percentile",
		},
	)

	decodeTimeP99Ms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_decode_time_p99_milliseconds",
			Help: "Decode time 99th percentile",
		},
	)

	hostLatencyAvgMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_host_latency_avg_milliseconds",
			Help: "Average host-side processing latency reported by the server",
		},
	)
)

// =============================================================================
// Panel 4: Pipeline Health
// =============================================================================

var (
	submissionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_submission_errors_total",
			Help: "Total input submission failures",
		},
	)

	outputErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_output_errors_total",
			Help: "Total presentation/render failures",
		},
	)

	reanchorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decode_pipeline_reanchors_total",
			Help: "Total presentation timeline re-anchors after deadline misses",
		},
	)

	timestampMapSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_timestamp_map_size",
			Help: "Outstanding submit timestamps awaiting decode",
		},
	)

	pendingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_pending_queue_depth",
			Help: "Frames queued awaiting an input buffer (sync mode)",
		},
	)

	freeInputSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decode_pipeline_free_input_slots",
			Help: "Input buffers currently available for filling (async mode)",
		},
	)
)

// Collector manages all Prometheus metrics for a decode session.
type Collector struct {
	startTime time.Time

	// Internal tracking for delta calculations.
	mu                   sync.Mutex
	prevSubmitted        int64
	prevDecoded          int64
	prevDropped          int64
	prevBytes            int64
	prevSubmissionErrors int64
	prevOutputErrors     int64
	prevReanchors        int64
}

// CollectorConfig holds the session labels exported on the info metric.
type CollectorConfig struct {
	Version    string
	Codec      string
	Resolution string
	Mode       string
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime: time.Now(),
	}

	registry.MustRegister(
		// Panel 1: Session Overview
		pipelineInfo,
		pipelineUptimeSeconds,

		// Panel 2: Frame Flow
		framesSubmittedTotal,
		framesDecodedTotal,
		framesDroppedTotal,
		bytesSubmittedTotal,
		receivedFPS,
		renderedFPS,
		bitrateKbps,
		bitrate60sKbps,

		// Panel 3: Decode Latency
		decodeTimeMilliseconds,
		decodeTimeAvgMs,
		decodeTimeMaxMs,
		decodeTimeP50Ms,
		decodeTimeP95Ms,
		decodeTimeP99Ms,
		hostLatencyAvgMs,

		// Panel 4: Pipeline Health
		submissionErrorsTotal,
		outputErrorsTotal,
		reanchorsTotal,
		timestampMapSize,
		pendingQueueDepth,
		freeInputSlots,
	)

	pipelineInfo.WithLabelValues(cfg.Version, cfg.Codec, cfg.Resolution, cfg.Mode).Set(1)

	return c
}

// StatsUpdate is the snapshot the pipeline hands to RecordStats each tick.
// This is a subset of stats.Stats to avoid circular imports.
type StatsUpdate struct {
	TotalFrames   int64
	DecodedFrames int64
	DroppedFrames int64
	TotalBytes    int64

	ReceivedFPS    float64
	RenderedFPS    float64
	BitrateKbps    float64
	Bitrate60sKbps float64

	AvgDecodeMs      float64
	MaxDecodeMs      float64
	DecodeP50Ms      float64
	DecodeP95Ms      float64
	DecodeP99Ms      float64
	AvgHostLatencyMs float64

	SubmissionErrors int64
	OutputErrors     int64
	Reanchors        int64
	TimestampMapSize int
	PendingQueueLen  int
	FreeInputSlots   int
}

// RecordStats updates all metrics from a stats snapshot.
func (c *Collector) RecordStats(u StatsUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pipelineUptimeSeconds.Set(time.Since(c.startTime).Seconds())

	// Counters are fed by delta.
	if d := u.TotalFrames - c.prevSubmitted; d > 0 {
		framesSubmittedTotal.Add(float64(d))
	}
	if d := u.DecodedFrames - c.prevDecoded; d > 0 {
		framesDecodedTotal.Add(float64(d))
	}
	if d := u.DroppedFrames - c.prevDropped; d > 0 {
		framesDroppedTotal.Add(float64(d))
	}
	if d := u.TotalBytes - c.prevBytes; d > 0 {
		bytesSubmittedTotal.Add(float64(d))
	}
	if d := u.SubmissionErrors - c.prevSubmissionErrors; d > 0 {
		submissionErrorsTotal.Add(float64(d))
	}
	if d := u.OutputErrors - c.prevOutputErrors; d > 0 {
		outputErrorsTotal.Add(float64(d))
	}
	if d := u.Reanchors - c.prevReanchors; d > 0 {
		reanchorsTotal.Add(float64(d))
	}
	c.prevSubmitted = u.TotalFrames
	c.prevDecoded = u.DecodedFrames
	c.prevDropped = u.DroppedFrames
	c.prevBytes = u.TotalBytes
	c.prevSubmissionErrors = u.SubmissionErrors
	c.prevOutputErrors = u.OutputErrors
	c.prevReanchors = u.Reanchors

	receivedFPS.Set(u.ReceivedFPS)
	renderedFPS.Set(u.RenderedFPS)
	bitrateKbps.Set(u.BitrateKbps)
	bitrate60sKbps.Set(u.Bitrate60sKbps)

	decodeTimeAvgMs.Set(u.AvgDecodeMs)
	decodeTimeMaxMs.Set(u.MaxDecodeMs)
	decodeTimeP50Ms.Set(u.DecodeP50Ms)
	decodeTimeP95Ms.Set(u.DecodeP95Ms)
	decodeTimeP99Ms.Set(u.DecodeP99Ms)
	hostLatencyAvgMs.Set(u.AvgHostLatencyMs)

	timestampMapSize.Set(float64(u.TimestampMapSize))
	pendingQueueDepth.Set(float64(u.PendingQueueLen))
	freeInputSlots.Set(float64(u.FreeInputSlots))
}

// RecordDecodeTime records a single decode latency observation.
func (c *Collector) RecordDecodeTime(ms float64) {
	decodeTimeMilliseconds.Observe(ms)
}

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration      time.Duration
	TotalFrames   int64
	DecodedFrames int64
	DroppedFrames int64
	TotalBytes    int64
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		Duration:      time.Since(c.startTime),
		TotalFrames:   c.prevSubmitted,
		DecodedFrames: c.prevDecoded,
		DroppedFrames: c.prevDropped,
		TotalBytes:    c.prevBytes,
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of both the learner client and the
// grading service. Collectors are registered on the registerer given to New.
type Metrics struct {
	// capture
	Recordings        *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
	RecordingSize     prometheus.Histogram

	// transcode
	Transcodes        *prometheus.CounterVec
	TranscodeDuration prometheus.Histogram
	ArtifactSize      prometheus.Histogram

	// submission
	SubmissionStages        *prometheus.CounterVec
	SubmissionStageDuration *prometheus.HistogramVec

	// grading service
	AttemptsCreated   prometheus.Counter
	AttemptsSubmitted prometheus.Counter
	AttemptsScored    prometheus.Counter
	Uploads           prometheus.Counter
	UploadSize        prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recordings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolab_recordings_total",
			Help: "Recordings finalized, by outcome (ok, auto_stopped, failed)",
		}, []string{"outcome"}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolab_recording_duration_seconds",
			Help:    "Duration of finalized recordings",
			Buckets: prometheus.LinearBuckets(10, 10, 12), // 10s to 2 minutes
		}),
		RecordingSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolab_recording_size_bytes",
			Help:    "Size of captured recordings before transcoding",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),

		Transcodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolab_transcodes_total",
			Help: "Transcodes by status (success, failure)",
		}, []string{"status"}),
		TranscodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolab_transcode_duration_seconds",
			Help:    "Time spent transcoding a recording",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		ArtifactSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolab_artifact_size_bytes",
			Help:    "Size of encoded MP3 artifacts",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KB to ~8MB
		}),

		SubmissionStages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolab_submission_stages_total",
			Help: "Submission stages by stage and status",
		}, []string{"stage", "status"}),
		SubmissionStageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingolab_submission_stage_duration_seconds",
			Help:    "Time spent in each submission stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"stage"}),

		AttemptsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "lingolab_attempts_created_total",
			Help: "Attempts created",
		}),
		AttemptsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "lingolab_attempts_submitted_total",
			Help: "Attempts submitted",
		}),
		AttemptsScored: f.NewCounter(prometheus.CounterOpts{
			Name: "lingolab_attempts_scored_total",
			Help: "Attempts scored",
		}),
		Uploads: f.NewCounter(prometheus.CounterOpts{
			Name: "lingolab_uploads_total",
			Help: "Media files stored",
		}),
		UploadSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolab_upload_size_bytes",
			Help:    "Size of stored media files",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolab_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingolab_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveRecording records the outcome of one capture.
func (m *Metrics) ObserveRecording(d time.Duration, size int, autoStopped bool, err error) {
	switch {
	case err != nil:
		m.Recordings.WithLabelValues("failed").Inc()
		return
	case autoStopped:
		m.Recordings.WithLabelValues("auto_stopped").Inc()
	default:
		m.Recordings.WithLabelValues("ok").Inc()
	}
	m.RecordingDuration.Observe(d.Seconds())
	m.RecordingSize.Observe(float64(size))
}

func (m *Metrics) ObserveTranscode(took time.Duration, size int, err error) {
	m.Transcodes.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	m.TranscodeDuration.Observe(took.Seconds())
	m.ArtifactSize.Observe(float64(size))
}

func (m *Metrics) ObserveStage(stage string, took time.Duration, err error) {
	m.SubmissionStages.WithLabelValues(stage, status(err)).Inc()
	m.SubmissionStageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

func (m *Metrics) ObserveUpload(size int) {
	m.Uploads.Inc()
	m.UploadSize.Observe(float64(size))
}

func (m *Metrics) ObserveHTTPRequest(method, route string, code int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

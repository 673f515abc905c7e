package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRecording(30*time.Second, 1<<20, false, nil)
	m.ObserveRecording(120*time.Second, 1<<22, true, nil)
	m.ObserveRecording(0, 0, false, errors.New("device lost"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recordings.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recordings.WithLabelValues("auto_stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recordings.WithLabelValues("failed")))

	m.ObserveTranscode(time.Second, 480000, nil)
	m.ObserveTranscode(time.Second, 0, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transcodes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transcodes.WithLabelValues("failure")))

	m.ObserveStage("upload", 200*time.Millisecond, nil)
	m.ObserveStage("upload", time.Second, errors.New("503"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionStages.WithLabelValues("upload", "failure")))

	m.ObserveHTTPRequest("POST", "/api/attempts", 201, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/attempts", "201")))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

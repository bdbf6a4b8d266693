// Package metrics exposes relay delivery counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder counts per-message outcomes.
type Recorder struct {
	Messages      *prometheus.CounterVec
	SessionFaults prometheus.Counter
	BatchSize     prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fcm_relay_messages_total",
				Help: "Total number of messages handed to FCM, by outcome and error code",
			},
			[]string{"outcome", "code"},
		),
		SessionFaults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fcm_relay_session_faults_total",
				Help: "Total number of batches cut short by an HTTP/2 session failure",
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fcm_relay_batch_size",
				Help:    "Number of messages per relayed request",
				Buckets: []float64{1, 5, 10, 50, 100, 250, 500},
			},
		),
	}
	reg.MustRegister(r.Messages, r.SessionFaults, r.BatchSize)
	return r
}

// ObserveSend records a single send.
func (r *Recorder) ObserveSend(err error) {
	r.BatchSize.Observe(1)
	if err == nil {
		r.Messages.WithLabelValues(OutcomeSuccess, "").Inc()
		return
	}
	r.Messages.WithLabelValues(OutcomeFailure, codeOf(err)).Inc()
}

// ObserveBatch records every outcome of a batch. A session error with a
// resolved partial response should be passed as that response.
func (r *Recorder) ObserveBatch(br *messaging.BatchResponse, err error) {
	var serr *messaging.SessionError
	if errors.As(err, &serr) {
		r.SessionFaults.Inc()
	}
	if br == nil {
		return
	}
	r.BatchSize.Observe(float64(len(br.Responses)))
	for _, resp := range br.Responses {
		if resp.Success {
			r.Messages.WithLabelValues(OutcomeSuccess, "").Inc()
			continue
		}
		r.Messages.WithLabelValues(OutcomeFailure, codeOf(resp.Error)).Inc()
	}
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	if code := messaging.CodeOf(err); code != "" {
		return string(code)
	}
	return string(messaging.CodeUnknownError)
}

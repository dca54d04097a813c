// Package metrics holds the prometheus collectors of the host engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tictactoe"

type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	MalformedFrames  prometheus.Counter
	SendFailures     prometheus.Counter
	GamesFinished    *prometheus.CounterVec
	Participants     prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	that := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Decoded messages received from participants, by kind.",
		}, []string{"kind"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages handed to participant channels, by kind.",
		}, []string{"kind"}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Frames dropped because they could not be decoded.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Sends that failed and disconnected the recipient.",
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games, by end state.",
		}, []string{"end_state"}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Currently connected participants.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			that.MessagesReceived,
			that.MessagesSent,
			that.MalformedFrames,
			that.SendFailures,
			that.GamesFinished,
			that.Participants,
		)
	}

	return that
}

package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizio_sessions_created_total",
		Help: "Number of quiz sessions created.",
	})

	metricSessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizio_sessions_ended_total",
		Help: "Number of quiz sessions that reached game over.",
	})

	metricAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizio_answers_total",
		Help: "Number of answers evaluated, by correctness.",
	}, []string{"result"})
)

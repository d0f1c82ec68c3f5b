package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transitions counts correction-request workflow transitions by outcome.
var Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timesheet_request_transitions_total",
	Help: "Correction request transitions applied, labeled by action.",
}, []string{"action"})

// ClockPunches counts clock-in/clock-out punches.
var ClockPunches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timesheet_clock_punches_total",
	Help: "Clock punches recorded, labeled by kind (in/out).",
}, []string{"kind"})

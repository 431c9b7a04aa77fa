package scheduler

import (
	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spamsweep_cycles_total",
	Help: "Total number of control loop cycles started.",
})

var ruleRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_rule_refreshes_total",
	Help: "Total number of rule loads by outcome.",
}, []string{"outcome"})

var activeRules = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spamsweep_active_rules",
	Help: "Number of rules in the active rule set.",
})

var cursorTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spamsweep_cursor_timestamp_seconds",
	Help: "Creation time encoded in the current cursor.",
})

func cursorPosition(id string) {
	if ts, ok := cursor.ToTime(id); ok {
		cursorTimestamp.Set(float64(ts.Unix()))
	}
}

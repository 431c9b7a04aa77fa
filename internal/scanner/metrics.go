package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var postsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_posts_evaluated_total",
	Help: "Total number of posts evaluated against the rule set.",
}, []string{"source"})

var verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_verdicts_total",
	Help: "Total number of rule evaluations by reason.",
}, []string{"reason"})

var pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spamsweep_timeline_pages_total",
	Help: "Total number of timeline pages fetched.",
})

var streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_stream_events_total",
	Help: "Total number of stream events received by event name.",
}, []string{"event"})

var passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_passes_total",
	Help: "Total number of pagination passes and stream sessions by outcome.",
}, []string{"source", "outcome"})

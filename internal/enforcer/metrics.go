package enforcer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hitsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_hits_handled_total",
	Help: "Total number of hits handed to the enforcer by reason.",
}, []string{"reason"})

var accountActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamsweep_account_actions_total",
	Help: "Total number of account actions by action and outcome.",
}, []string{"action", "outcome"})

var accountsSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spamsweep_accounts_skipped_total",
	Help: "Total number of accounts skipped because they were already purged.",
})

package devquote

import (
	"github.com/prometheus/client_golang/prometheus"
)

// counters are the domain metrics exported next to the HTTP ones.
type counters struct {
	estimates *prometheus.CounterVec
	captures  *prometheus.CounterVec
	aiCalls   *prometheus.CounterVec
}

func newCounters(reg prometheus.Registerer) (*counters, error) {
	c := &counters{
		estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devquote",
			Name:      "estimates_total",
			Help:      "Estimation requests by outcome.",
		}, []string{"outcome"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devquote",
			Name:      "email_captures_total",
			Help:      "Email capture writes by source and outcome.",
		}, []string{"source", "outcome"}),
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devquote",
			Name:      "ai_assist_calls_total",
			Help:      "Blog AI assistant calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	for _, col := range []prometheus.Collector{c.estimates, c.captures, c.aiCalls} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

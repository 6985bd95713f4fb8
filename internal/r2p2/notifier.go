package r2p2

import "github.com/prometheus/client_golang/prometheus"

// RouterNotifier is the optional hook the design notes call router_notify():
// invoked once a response has been fully handed to the transport, so an
// upstream routing layer can release any state it was holding open for the
// request. It is never on the hot path for correctness, only bookkeeping.
type RouterNotifier interface {
	RouterNotify(peer string, reqID uint16, policy Policy)
}

type noopNotifier struct{}

func (noopNotifier) RouterNotify(string, uint16, Policy) {}

// prometheusNotifier counts router_notify() calls by routing policy, so an
// operator can see policy cardinality without wiring a separate collector
// into every worker.
type prometheusNotifier struct {
	notifications *prometheus.CounterVec
}

// NewPrometheusNotifier builds a RouterNotifier backed by a single counter
// vector shared across every worker in an Engine; callers register it once
// and pass the same instance to every Worker's WorkerParams.Notifier.
func NewPrometheusNotifier(reg prometheus.Registerer) RouterNotifier {
	n := &prometheusNotifier{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "r2p2_router_notifications_total",
			Help: "router_notify() calls by routing policy.",
		}, []string{"policy"}),
	}
	reg.MustRegister(n.notifications)
	return n
}

func (n *prometheusNotifier) RouterNotify(_ string, _ uint16, policy Policy) {
	n.notifications.WithLabelValues(policy.String()).Inc()
}

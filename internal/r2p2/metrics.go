package r2p2

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the Prometheus collectors a single worker exposes. Every
// method is nil-receiver-safe so call sites never need a presence check;
// NullMetrics returns a nil *Metrics for workers run without a registry
// (most unit tests).
type Metrics struct {
	requestsSent     prometheus.Counter
	requestsFailed   prometheus.Counter
	requestsTimedOut prometheus.Counter
	responsesSent    prometheus.Counter
	responsesRecv    prometheus.Counter
	unknownResponse  prometheus.Counter
	outOfOrder       prometheus.Counter
	sizeMismatch     prometheus.Counter
	malformed        prometheus.Counter
	tooManyPackets   prometheus.Counter
	staleEvicted     prometheus.Counter
	droppedFull      prometheus.Counter
	poolExhausted    *prometheus.CounterVec
}

// NewMetrics builds and registers a Metrics instance labeled with worker,
// so per-worker series are distinguishable in a multi-worker engine.
func NewMetrics(reg prometheus.Registerer, worker string) *Metrics {
	labels := prometheus.Labels{"worker": worker}
	m := &Metrics{
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_requests_sent_total", Help: "Requests handed to send_request.", ConstLabels: labels,
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_requests_failed_total", Help: "Client pairs that ended via error_cb.", ConstLabels: labels,
		}),
		requestsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_requests_timed_out_total", Help: "Client pairs that ended via timeout_cb.", ConstLabels: labels,
		}),
		responsesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_responses_sent_total", Help: "Responses handed to send_response.", ConstLabels: labels,
		}),
		responsesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_responses_received_total", Help: "Responses fully reassembled and delivered via success_cb.", ConstLabels: labels,
		}),
		unknownResponse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_unknown_response_total", Help: "Response/ACK packets with no matching pending client pair.", ConstLabels: labels,
		}),
		outOfOrder: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_out_of_order_total", Help: "Fragments received with an unexpected p_order.", ConstLabels: labels,
		}),
		sizeMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_size_mismatch_total", Help: "Messages whose last packet arrived before the announced count was reached.", ConstLabels: labels,
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_malformed_packets_total", Help: "Packets dropped for being too short or carrying an unknown magic byte.", ConstLabels: labels,
		}),
		tooManyPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_too_many_packets_total", Help: "Chains that somehow exceeded the 255-packet wire limit.", ConstLabels: labels,
		}),
		staleEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_stale_server_pairs_evicted_total", Help: "Pending server pairs evicted by a duplicate first packet for the same (rid, peer).", ConstLabels: labels,
		}),
		droppedFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "r2p2_dropped_queue_full_total", Help: "Inbound packets dropped because a worker's queue was full.", ConstLabels: labels,
		}),
		poolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "r2p2_pool_exhausted_total", Help: "Pool exhaustion events by resource class.", ConstLabels: labels,
		}, []string{"resource"}),
	}
	reg.MustRegister(
		m.requestsSent, m.requestsFailed, m.requestsTimedOut,
		m.responsesSent, m.responsesRecv, m.unknownResponse,
		m.outOfOrder, m.sizeMismatch, m.malformed, m.tooManyPackets,
		m.staleEvicted, m.droppedFull, m.poolExhausted,
	)
	return m
}

// NullMetrics returns a nil *Metrics; every method on it is a no-op.
func NullMetrics() *Metrics { return nil }

func (m *Metrics) RequestSent() {
	if m == nil {
		return
	}
	m.requestsSent.Inc()
}

func (m *Metrics) RequestFailed() {
	if m == nil {
		return
	}
	m.requestsFailed.Inc()
}

func (m *Metrics) RequestTimedOut() {
	if m == nil {
		return
	}
	m.requestsTimedOut.Inc()
}

func (m *Metrics) ResponseSent() {
	if m == nil {
		return
	}
	m.responsesSent.Inc()
}

func (m *Metrics) ResponseReceived() {
	if m == nil {
		return
	}
	m.responsesRecv.Inc()
}

func (m *Metrics) UnknownResponse() {
	if m == nil {
		return
	}
	m.unknownResponse.Inc()
}

func (m *Metrics) OutOfOrder() {
	if m == nil {
		return
	}
	m.outOfOrder.Inc()
}

func (m *Metrics) SizeMismatch() {
	if m == nil {
		return
	}
	m.sizeMismatch.Inc()
}

func (m *Metrics) MalformedPacket() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) TooManyPackets() {
	if m == nil {
		return
	}
	m.tooManyPackets.Inc()
}

func (m *Metrics) StaleEvicted() {
	if m == nil {
		return
	}
	m.staleEvicted.Inc()
}

func (m *Metrics) DroppedFull() {
	if m == nil {
		return
	}
	m.droppedFull.Inc()
}

func (m *Metrics) PoolExhausted(resource string) {
	if m == nil {
		return
	}
	m.poolExhausted.WithLabelValues(resource).Inc()
}

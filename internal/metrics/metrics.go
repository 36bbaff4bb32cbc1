package metrics

import (
	"errors"
	"net/http"

	"wolf-fhs280/internal/heatpump"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wolf_fhs280"

// Metrics exposes the poller state as Prometheus series on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	fieldValue     *prometheus.GaugeVec
	polls          *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	writes         *prometheus.CounterVec
	lastPoll       prometheus.Gauge
	up             prometheus.Gauge
}

func New(device string) *Metrics {
	labels := prometheus.Labels{"device": device}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fieldValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "field_value",
			Help:        "Last decoded value per field. Flags are 0/1, enums their code, times minutes since midnight.",
			ConstLabels: labels,
		}, []string{"field", "unit"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "polls_total",
			Help:        "Poll cycles by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "decode_failures_total",
			Help:        "Register ranges that failed to decode.",
			ConstLabels: labels,
		}, []string{"range"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "writes_total",
			Help:        "Field writes by result.",
			ConstLabels: labels,
		}, []string{"field", "result"}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_poll_timestamp_seconds",
			Help:        "Unix time of the last successful poll.",
			ConstLabels: labels,
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "up",
			Help:        "1 if the last poll reached the device.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(m.fieldValue, m.polls, m.decodeFailures, m.writes, m.lastPoll, m.up)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoll records one poll cycle. Field gauges are only set for the
// fields the cycle refreshed.
func (m *Metrics) ObservePoll(regs *heatpump.RegisterMap, res heatpump.PollResult, err error) {
	if err != nil {
		m.polls.WithLabelValues("failure").Inc()
		var rerr *heatpump.RangeError
		if errors.As(err, &rerr) && errors.Is(err, heatpump.ErrTransport) {
			m.up.Set(0)
		}
		return
	}

	m.polls.WithLabelValues("success").Inc()
	m.up.Set(1)
	if res.Snapshot != nil {
		m.lastPoll.Set(float64(res.Snapshot.At.Unix()))
	}

	for _, derr := range res.DecodeErrors {
		var rerr *heatpump.RangeError
		if errors.As(derr, &rerr) {
			m.decodeFailures.WithLabelValues(rerr.Range.String()).Inc()
		}
	}

	for _, name := range res.Updated {
		v, ok := res.Snapshot.Get(name)
		if !ok {
			continue
		}
		unit := ""
		if f, err := regs.Lookup(name); err == nil {
			unit = f.Unit
		}
		m.fieldValue.WithLabelValues(name, unit).Set(v.Float())
	}
}

// ObserveWrite counts one write attempt. Names that are not in the register
// map share the "unknown" label so callers cannot grow the series set.
func (m *Metrics) ObserveWrite(field string, err error) {
	if errors.Is(err, heatpump.ErrUnknownField) {
		field = "unknown"
	}
	m.writes.WithLabelValues(field, writeResult(err)).Inc()
}

func writeResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, heatpump.ErrUnknownField):
		return "unknown_field"
	case errors.Is(err, heatpump.ErrReadOnly):
		return "read_only"
	case errors.Is(err, heatpump.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, heatpump.ErrTransport):
		return "transport_error"
	default:
		return "error"
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements port.RelayMetrics.
type Prometheus struct {
	registry       *prometheus.Registry
	delivered      prometheus.Counter
	queued         prometheus.Counter
	dropped        *prometheus.CounterVec
	deliveryFailed prometheus.Counter
	roomsOpened    prometheus.Counter
	roomsClosed    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duo", Name: "messages_delivered_total",
			Help: "Messages pushed to a connected client.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duo", Name: "messages_queued_total",
			Help: "Messages saved for a client that was not connected.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duo", Name: "messages_dropped_total",
			Help: "Messages neither delivered nor saved.",
		}, []string{"reason"}),
		deliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duo", Name: "delivery_failures_total",
			Help: "Failed gateway pushes.",
		}),
		roomsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duo", Name: "rooms_opened_total",
			Help: "Rooms created by this process.",
		}),
		roomsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duo", Name: "rooms_closed_total",
			Help: "Rooms deleted by this process, including rooms created before it started.",
		}),
	}
	reg.MustRegister(p.delivered, p.queued, p.dropped, p.deliveryFailed, p.roomsOpened, p.roomsClosed)
	return p
}

func (p *Prometheus) Delivered()            { p.delivered.Inc() }
func (p *Prometheus) Queued()               { p.queued.Inc() }
func (p *Prometheus) Dropped(reason string) { p.dropped.WithLabelValues(reason).Inc() }
func (p *Prometheus) DeliveryFailed()       { p.deliveryFailed.Inc() }
func (p *Prometheus) RoomOpened()           { p.roomsOpened.Inc() }
func (p *Prometheus) RoomClosed()           { p.roomsClosed.Inc() }

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler exposes the relay metrics at /metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	requestsTotal    prometheus.Counter
	domainsChecked   *prometheus.CounterVec
	rateLimitDenials prometheus.Counter
	webhookFlushes   *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_check_requests_total",
			Help: "Total number of admitted check requests",
		}),

		domainsChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_domains_checked_total",
			Help: "Total number of domains checked, by outcome",
		}, []string{"outcome"}),

		rateLimitDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rate_limit_denials_total",
			Help: "Total number of requests denied by the rate limiter",
		}),

		webhookFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhook_flushes_total",
			Help: "Total number of webhook flush cycles, by result",
		}, []string{"result"}),
	}
}

func (c *Collector) RecordRequest() {
	c.requestsTotal.Inc()
}

func (c *Collector) RecordDomains(blocked, notBlocked, errors int) {
	c.domainsChecked.WithLabelValues("blocked").Add(float64(blocked))
	c.domainsChecked.WithLabelValues("not_blocked").Add(float64(notBlocked))
	c.domainsChecked.WithLabelValues("error").Add(float64(errors))
}

func (c *Collector) RecordDenial() {
	c.rateLimitDenials.Inc()
}

// RecordFlush tracks dispatcher cycles; result is one of sent, failed,
// empty.
func (c *Collector) RecordFlush(result string) {
	c.webhookFlushes.WithLabelValues(result).Inc()
}

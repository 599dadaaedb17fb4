package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const courseWizard = "canvas_site_wizard"

// Mail metrics
const (
	mailSentTotal = "mail_sent_total"

	mailOutcomeLabel = "outcome"
)

var mailSentTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: courseWizard,
		Name:      mailSentTotal,
		Help:      "number of notification mails attempted, by outcome",
	},
	[]string{mailOutcomeLabel},
)

func IncreaseMailSentMetric(outcome string) {
	mailSentTotalMetric.With(prometheus.Labels{mailOutcomeLabel: outcome}).Inc()
}

func init() {
	prometheus.MustRegister(mailSentTotalMetric)
}

type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

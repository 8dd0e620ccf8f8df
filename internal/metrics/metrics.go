package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Admission results.
const (
	AdmissionAccepted = "accepted"
	AdmissionConflict = "conflict"
	AdmissionRace     = "conflict_index"
	AdmissionInvalid  = "invalid"
	AdmissionError    = "error"
)

// Metrics exposes counters/histograms for the booking flow and HTTP surface.
type Metrics struct {
	admissions      *prometheus.CounterVec
	availability    *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctors_portal",
			Subsystem: "bookings",
			Name:      "admission_total",
			Help:      "Booking submissions by outcome",
		}, []string{"result"}),
		availability: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doctors_portal",
			Subsystem: "availability",
			Name:      "resolve_seconds",
			Help:      "Latency of availability resolution by strategy",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doctors_portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.admissions, m.availability, m.requestDuration)
	return m
}

func (m *Metrics) ObserveAdmission(result string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAvailability(strategy string, seconds float64) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(strategy).Observe(seconds)
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

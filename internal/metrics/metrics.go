package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for booking and reminder flows.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	remindersTotal     *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prenota",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prenota",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Total appointment transitions into a terminal status",
		}, []string{"status"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prenota",
			Subsystem: "reminder",
			Name:      "reminders_total",
			Help:      "Reminder batch results",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.cancellationsTotal, m.remindersTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(mode, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *BookingMetrics) ObserveCancellation(status string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveReminder(result string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(result).Inc()
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "smarterdog"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	wizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transitions_total",
			Help:      "Booking wizard actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	appointmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Appointments committed to the datastore.",
		},
	)

	appointmentsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled.",
		},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Submissions rejected because the groomer was already booked.",
		},
	)

	bookedRevenue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booked_revenue_pence_total",
			Help:      "Sum of appointment totals at booking time, in pence.",
		},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Sheets sync task results.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			wizardTransitions,
			appointmentsCreated,
			appointmentsCancelled,
			slotConflicts,
			bookedRevenue,
			syncTasks,
		)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, statusClass(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncWizard(action, outcome string) {
	wizardTransitions.WithLabelValues(action, outcome).Inc()
}

// AppointmentCreated counts a new booking and its value.
func AppointmentCreated(totalPence int64) {
	appointmentsCreated.Inc()
	if totalPence > 0 {
		bookedRevenue.Add(float64(totalPence))
	}
}

func AppointmentCancelled() {
	appointmentsCancelled.Inc()
}

func SlotConflict() {
	slotConflicts.Inc()
}

func IncSync(result string) {
	syncTasks.WithLabelValues(result).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

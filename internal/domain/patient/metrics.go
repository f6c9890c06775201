package patient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration outcomes and the identifier allocator under load.
type Metrics struct {
	Registered             prometheus.Counter
	AllocationConflicts    prometheus.Counter
	AllocationExhausted    prometheus.Counter
	DuplicatePhoneWarnings prometheus.Counter
	DuplicateCheckFailures prometheus.Counter
	StatusTransitions      *prometheus.CounterVec
	RegisterDuration       prometheus.Histogram
}

// NewMetrics registers the patient metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registered: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_registrations_total",
			Help: "Total number of patients registered",
		}),
		AllocationConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_id_allocation_conflicts_total",
			Help: "Total number of allocate-and-insert attempts lost to a concurrent writer",
		}),
		AllocationExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_id_allocation_exhausted_total",
			Help: "Total number of registrations that ran out of allocation attempts",
		}),
		DuplicatePhoneWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_duplicate_phone_warnings_total",
			Help: "Total number of writes flagged with a duplicate phone warning",
		}),
		DuplicateCheckFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_duplicate_phone_check_failures_total",
			Help: "Total number of duplicate phone lookups that failed and were skipped",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "patient_status_transitions_total",
			Help: "Total number of activate/deactivate transitions by target status",
		}, []string{"status"}),
		RegisterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "patient_register_duration_seconds",
			Help:    "Duration of patient registration including allocation retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveRegister records the duration of a registration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncStatusTransition(to Status) {
	m.StatusTransitions.WithLabelValues(string(to)).Inc()
}

package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BudgetsSavedTotal counts persisted budgets by status.
	BudgetsSavedTotal *prometheus.CounterVec
	// CheckoutChargesTotal counts checkout charge outcomes by method.
	CheckoutChargesTotal *prometheus.CounterVec
	// CheckoutChargeAmount observes settled charge amounts in centavos.
	CheckoutChargeAmount *prometheus.HistogramVec
	// CheckoutFailureStage counts which commit step a failed charge died in.
	CheckoutFailureStage *prometheus.CounterVec
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
	// WebhookDispatchAttempts counts dispatcher attempts regardless of outcome.
	WebhookDispatchAttempts prometheus.Counter
	// WebhookDispatchDLQ counts deliveries moved to the dead-letter queue.
	WebhookDispatchDLQ prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BudgetsSavedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budgets_saved_total",
			Help:      "Count of persisted budgets by status.",
		}, []string{"status"})
		CheckoutChargesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_charges_total",
			Help:      "Count of checkout charge outcomes by payment method.",
		}, []string{"method", "result"})
		CheckoutChargeAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_charge_amount_centavos",
			Help:      "Settled charge amounts in centavos.",
			Buckets:   []float64{10000, 50000, 100000, 250000, 500000, 1000000, 2500000},
		}, []string{"method"})
		CheckoutFailureStage = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_failure_stage_total",
			Help:      "Count of failed checkout charges by commit stage.",
		}, []string{"stage"})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		WebhookDispatchAttempts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_attempts_total",
			Help:      "Total number of webhook dispatch attempts.",
		})
		WebhookDispatchDLQ = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_dlq_total",
			Help:      "Number of webhook deliveries moved to the dead-letter queue.",
		})

		mustRegisterCollector(reg, BudgetsSavedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BudgetsSavedTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutChargesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutChargesTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutChargeAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CheckoutChargeAmount = v
			}
		})
		mustRegisterCollector(reg, CheckoutFailureStage, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutFailureStage = v
			}
		})
		mustRegisterCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
		mustRegisterCollector(reg, WebhookDispatchAttempts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				WebhookDispatchAttempts = v
			}
		})
		mustRegisterCollector(reg, WebhookDispatchDLQ, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				WebhookDispatchDLQ = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// ChargeRecorder adapts the domain counters to the checkout service's
// metrics interface.
type ChargeRecorder struct{}

func (ChargeRecorder) ChargeCompleted(method string, amount int64) {
	if CheckoutChargesTotal != nil {
		CheckoutChargesTotal.WithLabelValues(method, "completed").Inc()
	}
	if CheckoutChargeAmount != nil {
		CheckoutChargeAmount.WithLabelValues(method).Observe(float64(amount))
	}
}

func (ChargeRecorder) ChargeFailed(method, stage string) {
	if CheckoutChargesTotal != nil {
		CheckoutChargesTotal.WithLabelValues(method, "failed").Inc()
	}
	if CheckoutFailureStage != nil {
		CheckoutFailureStage.WithLabelValues(stage).Inc()
	}
}

// DeliveryRecorder adapts the webhook counters to the dispatcher's metrics
// interface.
type DeliveryRecorder struct{}

func (DeliveryRecorder) DeliveryAttempt() {
	if WebhookDispatchAttempts != nil {
		WebhookDispatchAttempts.Inc()
	}
}

func (DeliveryRecorder) DeliveryOutcome(outcome string, elapsed time.Duration) {
	if WebhookDeliveriesTotal != nil {
		WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	}
	if WebhookAttemptLatency != nil {
		WebhookAttemptLatency.WithLabelValues(outcome).Observe(DurationMillis(elapsed))
	}
}

func (DeliveryRecorder) DeliveryDLQ() {
	if WebhookDispatchDLQ != nil {
		WebhookDispatchDLQ.Inc()
	}
}

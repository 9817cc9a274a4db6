package obs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the domain counters.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)

var (
	domainOnce sync.Once

	// PromoApplyTotal counts apply-promo attempts by outcome.
	PromoApplyTotal *prometheus.CounterVec
	// CheckoutOrdersTotal counts order placement attempts by outcome.
	CheckoutOrdersTotal *prometheus.CounterVec
	// CommissionAmountTotal accumulates platform commission in currency units.
	CommissionAmountTotal prometheus.Counter
	// PayoutJobsTotal counts payout task executions by outcome.
	PayoutJobsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromoApplyTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_apply_total",
			Help:      "Count of promo code apply attempts by outcome.",
		}, []string{"result"}))
		CheckoutOrdersTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of order placement attempts by outcome.",
		}, []string{"result"}))
		CommissionAmountTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_amount_total",
			Help:      "Platform commission booked on placed orders, in currency units.",
		}))
		PayoutJobsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_jobs_total",
			Help:      "Count of seller payout task executions by outcome.",
		}, []string{"result"}))
	})
}

// RecordPromoApply increments the promo apply counter. Safe before registration.
func RecordPromoApply(result string) {
	if PromoApplyTotal != nil {
		PromoApplyTotal.WithLabelValues(result).Inc()
	}
}

// RecordCheckout increments the checkout counter.
func RecordCheckout(result string) {
	if CheckoutOrdersTotal != nil {
		CheckoutOrdersTotal.WithLabelValues(result).Inc()
	}
}

// AddCommission adds amount to the booked commission counter. Negative amounts are ignored.
func AddCommission(amount float64) {
	if CommissionAmountTotal != nil && amount > 0 {
		CommissionAmountTotal.Add(amount)
	}
}

// RecordPayoutJob increments the payout job counter.
func RecordPayoutJob(result string) {
	if PayoutJobsTotal != nil {
		PayoutJobsTotal.WithLabelValues(result).Inc()
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
	return c
}

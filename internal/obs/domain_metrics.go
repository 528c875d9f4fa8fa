package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromoResolutionTotal counts promo code resolution outcomes.
	PromoResolutionTotal *prometheus.CounterVec
	// PromoApplyTotal counts interactive apply attempts by result.
	PromoApplyTotal *prometheus.CounterVec
	// OfferReconcileTotal counts offer reconciliation passes by outcome.
	OfferReconcileTotal *prometheus.CounterVec
	// FreeItemsRevoked counts derived free lines removed by reconciliation.
	FreeItemsRevoked prometheus.Counter
	// CheckoutTotal counts checkout outcomes.
	CheckoutTotal *prometheus.CounterVec
	// CheckoutLatency records checkout transaction latency in milliseconds.
	CheckoutLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromoResolutionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_resolution_total",
			Help:      "Count of promo resolution outcomes by code disposition.",
		}, []string{"disposition"})
		PromoApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_apply_total",
			Help:      "Count of interactive promo apply attempts by result.",
		}, []string{"result"})
		OfferReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_reconcile_total",
			Help:      "Count of offer reconciliation passes by outcome.",
		}, []string{"outcome"})
		FreeItemsRevoked = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "free_items_revoked_total",
			Help:      "Number of derived free lines removed because their offer condition lapsed.",
		})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout outcomes.",
		}, []string{"result"})
		CheckoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Latency of the checkout transaction in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})

		mustRegisterCollector(reg, PromoResolutionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoResolutionTotal = v
			}
		})
		mustRegisterCollector(reg, PromoApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoApplyTotal = v
			}
		})
		mustRegisterCollector(reg, OfferReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OfferReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, FreeItemsRevoked, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				FreeItemsRevoked = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CheckoutLatency = v
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

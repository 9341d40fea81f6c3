package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesIssued tracks quotes an expert issued.
	QuotesIssued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "quotes_issued_total",
			Help:      "Total number of quotes issued by an expert",
		},
	)

	// QuoteValidations tracks ValidateQuote outcomes on the client side.
	QuoteValidations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "quote_validations_total",
			Help:      "Total number of quote validations by outcome",
		},
		[]string{"outcome"}, // accepted, rejected
	)

	// PaymentsVerified tracks VerifyPayment outcomes on the expert side.
	PaymentsVerified = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "payments_verified_total",
			Help:      "Total number of payment verifications by outcome",
		},
		[]string{"outcome"}, // success, rejected, failed
	)

	// QuoteAmountSats tracks quoted amounts in satoshis.
	QuoteAmountSats = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "quote_amount_sats",
			Help:      "Quoted amount in satoshis",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 10), // 10 sat to ~10M sat
		},
	)
)

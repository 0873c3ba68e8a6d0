package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

func newBreaker(name string, cfg config.HTTPClientConfig, logg *logger.Logger, gauge *prometheus.GaugeVec) *gobreaker.CircuitBreaker[*http.Response] {
	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		// Canceled callers say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "httpclient.breaker.state_change")
			if gauge != nil {
				gauge.WithLabelValues(name).Set(stateValue(to))
			}
		},
	}
	if gauge != nil {
		gauge.WithLabelValues(name).Set(0)
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}

// breakerGauge registers the shared state gauge once per registry.
func breakerGauge(reg prometheus.Registerer) *prometheus.GaugeVec {
	if reg == nil {
		return nil
	}
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_client_breaker_state",
		Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open).",
	}, []string{"upstream"})
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		return nil
	}
	return gauge
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Storefront records cart, wishlist, session and capture activity.
type Storefront struct {
	cartMutations  *prometheus.CounterVec
	checkouts      *prometheus.CounterVec
	checkoutTime   prometheus.Histogram
	wishlistMerges *prometheus.CounterVec
	sessionResets  *prometheus.CounterVec
	authEvents     *prometheus.CounterVec
	emailCaptures  *prometheus.CounterVec
	activeClients  prometheus.Gauge
}

// NewStorefront registers the storefront metrics on the provided registerer.
func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	s := &Storefront{
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations by operation.",
		}, []string{"op"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Checkout creation attempts by result.",
		}, []string{"result"}),
		checkoutTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Time spent creating a checkout with the commerce backend.",
			Buckets: prometheus.DefBuckets,
		}),
		wishlistMerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_wishlist_merged_items_total",
			Help: "Guest wishlist items evaluated during login merges by outcome.",
		}, []string{"outcome"}),
		sessionResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_resets_total",
			Help: "Cart session resets by reason.",
		}, []string{"reason"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_events_total",
			Help: "Auth state transitions observed by the session bridge.",
		}, []string{"event"}),
		emailCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_email_captures_total",
			Help: "Email capture requests by result.",
		}, []string{"result"}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_clients",
			Help: "Storefront client runtimes currently cached.",
		}),
	}
	reg.MustRegister(
		s.cartMutations,
		s.checkouts,
		s.checkoutTime,
		s.wishlistMerges,
		s.sessionResets,
		s.authEvents,
		s.emailCaptures,
		s.activeClients,
	)
	return s
}

func (s *Storefront) CartMutation(op string) {
	if s == nil || s.cartMutations == nil {
		return
	}
	s.cartMutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (s *Storefront) Checkout(result string, duration time.Duration) {
	if s == nil || s.checkouts == nil {
		return
	}
	s.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
	s.checkoutTime.Observe(duration.Seconds())
}

// WishlistMerge counts guest items appended and skipped as duplicates.
func (s *Storefront) WishlistMerge(added, skipped int) {
	if s == nil || s.wishlistMerges == nil {
		return
	}
	s.wishlistMerges.WithLabelValues("added").Add(float64(added))
	s.wishlistMerges.WithLabelValues("duplicate").Add(float64(skipped))
}

func (s *Storefront) SessionReset(reason string) {
	if s == nil || s.sessionResets == nil {
		return
	}
	s.sessionResets.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (s *Storefront) AuthEvent(event string) {
	if s == nil || s.authEvents == nil {
		return
	}
	s.authEvents.WithLabelValues(normalizeLabel(event)).Inc()
}

func (s *Storefront) EmailCapture(result string) {
	if s == nil || s.emailCaptures == nil {
		return
	}
	s.emailCaptures.WithLabelValues(normalizeLabel(result)).Inc()
}

func (s *Storefront) SetActiveClients(n int) {
	if s == nil || s.activeClients == nil {
		return
	}
	s.activeClients.Set(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

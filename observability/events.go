package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"cdpchain/core/events"
	"cdpchain/crypto"
)

type eventMetrics struct {
	events     *prometheus.CounterVec
	transfers  *prometheus.CounterVec
	mints      prometheus.Counter
	repays     prometheus.Counter
	challenges *prometheus.CounterVec
	forced     prometheus.Counter
	rolls      prometheus.Counter

	mu     sync.Mutex
	minted map[crypto.Address]*big.Int
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			minted: make(map[crypto.Address]*big.Int),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Name:      "events_total",
				Help:      "Count of committed protocol events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of ledger transfers segmented by asset.",
			}, []string{"asset"}),
			mints: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "position",
				Name:      "mint_total",
				Help:      "Count of minting updates that increased a position's debt.",
			}),
			repays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "position",
				Name:      "repay_total",
				Help:      "Count of minting updates that reduced a position's debt.",
			}),
			challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Name:      "challenges_total",
				Help:      "Count of challenge lifecycle steps segmented by outcome.",
			}, []string{"outcome"}),
			forced: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdp",
				Name:      "forced_sales_total",
				Help:      "Count of expired collateral purchases.",
			}),
			rolls: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdp",
				Name:      "rolls_total",
				Help:      "Count of debt rolls between positions.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.events,
			eventRegistry.transfers,
			eventRegistry.mints,
			eventRegistry.repays,
			eventRegistry.challenges,
			eventRegistry.forced,
			eventRegistry.rolls,
		)
	})
	return eventRegistry
}

// Emit implements events.Emitter so the registry can subscribe to committed
// events directly.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.Transfer:
		m.RecordTransfer(e.Asset)
	case events.MintingUpdate:
		m.recordMinted(e.Position, e.Minted)
	case events.ChallengeStarted:
		m.challenges.WithLabelValues("started").Inc()
	case events.ChallengeAverted:
		m.challenges.WithLabelValues("averted").Inc()
	case events.ChallengeSucceeded:
		m.challenges.WithLabelValues("succeeded").Inc()
	case events.ForcedSale:
		m.forced.Inc()
	case events.Roll:
		m.rolls.Inc()
	}
}

// RecordTransfer increments the transfer counter for the supplied asset.
func (m *eventMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}

// recordMinted compares the debt in a minting update with the last one seen
// for the position to tell mints from repayments.
func (m *eventMetrics) recordMinted(position crypto.Address, minted *big.Int) {
	if minted == nil {
		return
	}
	m.mu.Lock()
	prev, ok := m.minted[position]
	m.minted[position] = new(big.Int).Set(minted)
	m.mu.Unlock()
	if !ok {
		prev = big.NewInt(0)
	}
	switch minted.Cmp(prev) {
	case 1:
		m.mints.Inc()
	case -1:
		m.repays.Inc()
	}
}

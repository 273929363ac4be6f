package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics publishes the reserve and supply gauges of the debt ledger.
type ProtocolMetrics struct {
	totalSupply    prometheus.Gauge
	minterReserve  prometheus.Gauge
	equity         prometheus.Gauge
	openChallenges prometheus.Gauge
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_debt_total_supply",
				Help: "Outstanding debt units in whole tokens.",
			}),
			minterReserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_minter_reserve",
				Help: "Reserve contributions owed back to minters in whole tokens.",
			}),
			equity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_reserve_equity",
				Help: "Reserve balance not owed to minters in whole tokens.",
			}),
			openChallenges: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_open_challenges",
				Help: "Number of challenges with a bond left.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.totalSupply,
			protocolRegistry.minterReserve,
			protocolRegistry.equity,
			protocolRegistry.openChallenges,
		)
	})
	return protocolRegistry
}

// Snapshot is one reading of the protocol gauges. Amounts carry 18 decimals.
type Snapshot struct {
	TotalSupply    *big.Int
	MinterReserve  *big.Int
	Equity         *big.Int
	OpenChallenges int
}

func (m *ProtocolMetrics) Observe(s Snapshot) {
	if m == nil {
		return
	}
	m.totalSupply.Set(tokens(s.TotalSupply))
	m.minterReserve.Set(tokens(s.MinterReserve))
	m.equity.Set(tokens(s.Equity))
	m.openChallenges.Set(float64(s.OpenChallenges))
}

var unit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func tokens(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), unit).Float64()
	return f
}

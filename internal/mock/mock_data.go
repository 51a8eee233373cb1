// Package mock provides a simulated broker and a scripted market-data streamer.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// DataProvider simulates a broker: a same-day chain around a drifting spot,
// with quotes, greeks and summaries streamed on request.
type DataProvider struct {
	mu             sync.Mutex
	underlying     string
	root           string
	spot           float64
	dayOpen        float64
	prevClose      float64
	ivr            float64
	strikeInterval float64
	strikeRange    float64
	tick           time.Duration
	loc            *time.Location
	now            func() time.Time
}

// Ensure DataProvider implements broker.Broker at compile time.
var _ broker.Broker = (*DataProvider)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewDataProvider creates a provider for underlying whose expirations fall on
// the current date in loc.
func NewDataProvider(underlying string, loc *time.Location) *DataProvider {
	if loc == nil {
		loc = time.UTC
	}
	prevClose := 6000.0 + secureFloat64()*100
	dayOpen := prevClose * (1 + (secureFloat64()-0.5)*0.01)
	return &DataProvider{
		underlying:     underlying,
		root:           underlying + "W",
		spot:           dayOpen,
		dayOpen:        dayOpen,
		prevClose:      prevClose,
		ivr:            0.10 + secureFloat64()*0.40,
		strikeInterval: 5,
		strikeRange:    150,
		tick:           200 * time.Millisecond,
		loc:            loc,
		now:            time.Now,
	}
}

// SetSpot pins the simulated spot price.
func (m *DataProvider) SetSpot(spot float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot = spot
}

// SetClock replaces the provider's clock.
func (m *DataProvider) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetTick sets how often streams emit.
func (m *DataProvider) SetTick(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = d
}

// Spot returns the current simulated spot.
func (m *DataProvider) Spot() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spot
}

// FetchChain returns today's expiration with strikes around spot.
func (m *DataProvider) FetchChain(_ context.Context, underlying string) (broker.Chain, error) {
	if underlying != m.underlying {
		return nil, fmt.Errorf("mock provider only serves %s, not %s", m.underlying, underlying)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.now().In(m.loc)
	exp := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	chain := make(broker.Chain)

	center := math.Round(m.spot/m.strikeInterval) * m.strikeInterval
	for strike := center - m.strikeRange; strike <= center+m.strikeRange; strike += m.strikeInterval {
		chain.Add(models.Contract{Symbol: m.symbol(exp, 'C', strike), Strike: strike, Class: models.Call, Expiration: exp})
		chain.Add(models.Contract{Symbol: m.symbol(exp, 'P', strike), Strike: strike, Class: models.Put, Expiration: exp})
	}
	return chain, nil
}

// IVRank returns a slowly wandering IV rank ratio.
func (m *DataProvider) IVRank(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ivr += (secureFloat64() - 0.5) * 0.02
	m.ivr = math.Max(0.01, math.Min(0.99, m.ivr))
	return m.ivr, nil
}

// Subscribe emits one event per symbol every tick until ctx is done.
func (m *DataProvider) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	switch kind {
	case marketdata.KindQuote, marketdata.KindGreeks, marketdata.KindSummary:
	default:
		return nil, fmt.Errorf("mock provider cannot stream %q", kind)
	}
	m.mu.Lock()
	tick := m.tick
	m.mu.Unlock()

	out := make(chan marketdata.Event)
	go func() {
		defer close(out)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			for _, sym := range symbols {
				ev, ok := m.event(kind, sym)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
				m.drift()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *DataProvider) drift() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot += (secureFloat64() - 0.5) * 2
}

func (m *DataProvider) event(kind marketdata.EventKind, symbol string) (marketdata.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := marketdata.Event{Kind: kind, Symbol: symbol, Time: m.now()}

	if symbol == m.underlying {
		switch kind {
		case marketdata.KindQuote:
			ev.Bid, ev.Ask = m.spot-0.25, m.spot+0.25
		case marketdata.KindSummary:
			ev.DayOpen, ev.DayClose, ev.PrevClose = m.dayOpen, m.spot, m.prevClose
		default:
			return ev, false
		}
		return ev, true
	}

	strike, err := models.ParseStrike(symbol)
	if err != nil {
		return ev, false
	}
	isCall := len(symbol) > 0 && isCallSymbol(symbol)
	callDelta, callPrice, putPrice := m.model(strike)

	switch kind {
	case marketdata.KindQuote:
		price := putPrice
		if isCall {
			price = callPrice
		}
		half := math.Max(0.05, price*0.02)
		ev.Bid, ev.Ask = math.Max(0, price-half), price+half
	case marketdata.KindGreeks:
		ev.Delta = callDelta - 1
		if isCall {
			ev.Delta = callDelta
		}
	default:
		return ev, false
	}
	return ev, true
}

// model prices a same-day option with exponential delta decay away from spot.
func (m *DataProvider) model(strike float64) (callDelta, callPrice, putPrice float64) {
	distance := math.Abs(strike - m.spot)
	decay := math.Exp(-distance * 0.03)

	callDelta = 0.5 * decay
	if strike < m.spot {
		callDelta = 1 - 0.5*decay
	}
	timeValue := m.spot * 0.002 * decay
	callPrice = math.Max(0, m.spot-strike) + timeValue
	putPrice = math.Max(0, strike-m.spot) + timeValue
	return callDelta, math.Max(0.05, callPrice), math.Max(0.05, putPrice)
}

func (m *DataProvider) symbol(exp time.Time, class byte, strike float64) string {
	return fmt.Sprintf(".%s%s%c%s", m.root, exp.Format("060102"), class, strconv.FormatFloat(strike, 'f', -1, 64))
}

// isCallSymbol reads the class letter preceding the strike digits.
func isCallSymbol(symbol string) bool {
	for i := len(symbol) - 1; i >= 0; i-- {
		switch symbol[i] {
		case 'C':
			return true
		case 'P':
			return false
		}
	}
	return false
}

// Package market supplies the two read-only market-data operations the ACE
// loop depends on, grounded on the teacher's data.MarketDataService but
// narrowed from a live streaming client to the snapshot/session-history
// contract spec.md §6 names: a REST-style historical fetch, not a
// persistent WebSocket feed.
package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider is the external collaborator the Generator and cycle
// orchestrators depend on for market context.
type Provider interface {
	FetchSnapshot(ctx context.Context, now time.Time) (types.MarketSnapshot, error)
	FetchSessionOHLC(ctx context.Context, date string, windowHours int, interval string) ([]types.Candle, error)
}

// SampleProvider is a self-contained Provider backed by deterministically
// generated OHLC data, grounded on the teacher's Store.generateSampleData
// fallback path — used where no live feed is configured (local runs, CI,
// or as the seed data source before a real feed is wired in).
type SampleProvider struct {
	logger      *zap.Logger
	pair        string
	basePrice   decimal.Decimal
	sessionOpen time.Duration
	intervalMin map[string]int
}

// NewSampleProvider builds a Provider that synthesizes candles around
// basePrice for pair. sessionOpenUTC is "HH:MM", the session's opening
// time of day — spec.md §9's centralized session-window-start knob — and
// is applied as an offset from midnight when computing a session's first
// candle. An unparseable sessionOpenUTC falls back to midnight.
func NewSampleProvider(logger *zap.Logger, pair string, basePrice decimal.Decimal, sessionOpenUTC string) *SampleProvider {
	offset, err := parseSessionOpen(sessionOpenUTC)
	if err != nil {
		logger.Warn("invalid session_open_utc, defaulting to midnight", zap.String("session_open_utc", sessionOpenUTC), zap.Error(err))
		offset = 0
	}
	return &SampleProvider{
		logger:      logger.Named("market-sample-provider"),
		pair:        pair,
		basePrice:   basePrice,
		sessionOpen: offset,
		intervalMin: map[string]int{
			"1m": 1, "5m": 5, "15m": 15, "1h": 60, "4h": 240, "1d": 1440,
		},
	}
}

// parseSessionOpen parses an "HH:MM" time of day into its offset from
// midnight.
func parseSessionOpen(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("market: invalid session_open_utc %q: %w", hhmm, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FetchSnapshot synthesizes a MarketSnapshot anchored at now. Trend and
// support/resistance levels are derived deterministically from basePrice so
// repeated calls for the same (pair, now) are stable, matching the
// reproducibility expectation the rest of the loop depends on.
func (p *SampleProvider) FetchSnapshot(ctx context.Context, now time.Time) (types.MarketSnapshot, error) {
	spread := p.basePrice.Mul(decimal.NewFromFloat(0.001))

	timeframe := types.MarketTimeframe{
		Trend:         "neutral",
		KeySupport:    []decimal.Decimal{p.basePrice.Sub(spread)},
		KeyResistance: []decimal.Decimal{p.basePrice.Add(spread)},
	}

	return types.MarketSnapshot{
		Pair:           p.pair,
		CurrentPrice:   p.basePrice,
		CurrentTimeUTC: now.UTC(),
		Timeframes: map[string]types.MarketTimeframe{
			"Daily": timeframe,
			"H4":    timeframe,
			"H1":    timeframe,
		},
		Volatility:     types.Volatility{ATRDailyPips: decimal.NewFromInt(60)},
		EconomicEvents: nil,
		Intermarket:    map[string]string{},
	}, nil
}

// FetchSessionOHLC synthesizes window_hours worth of candles at interval
// starting at date's session open. Returns an error for an unrecognized
// interval rather than silently defaulting, since the caller (the Executor,
// via the cycle orchestrator) treats a fetch error as "data unavailable"
// and routes to the replay simulator's hash-based fallback (spec.md §4.4).
func (p *SampleProvider) FetchSessionOHLC(ctx context.Context, date string, windowHours int, interval string) ([]types.Candle, error) {
	stepMin, ok := p.intervalMin[interval]
	if !ok {
		return nil, fmt.Errorf("market: unrecognized interval %q", interval)
	}

	sessionDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("market: invalid session date %q: %w", date, err)
	}
	sessionOpen := sessionDate.Add(p.sessionOpen)

	steps := (windowHours * 60) / stepMin
	candles := make([]types.Candle, 0, steps)
	cursor := p.basePrice
	drift := p.basePrice.Mul(decimal.NewFromFloat(0.0002))

	for i := 0; i < steps; i++ {
		openTime := sessionOpen.Add(time.Duration(i*stepMin) * time.Minute)
		open := cursor
		high := open.Add(drift)
		low := open.Sub(drift)
		close := open
		candles = append(candles, types.Candle{OpenTime: openTime, Open: open, High: high, Low: low, Close: close})
		cursor = close
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestFetchSnapshot_IsDeterministic(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "13:00")
	now := time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)

	snap1, err := p.FetchSnapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap2, err := p.FetchSnapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !snap1.CurrentPrice.Equal(snap2.CurrentPrice) {
		t.Fatalf("expected deterministic snapshot price")
	}
	if snap1.Pair != "EURUSD" {
		t.Fatalf("expected pair EURUSD, got %s", snap1.Pair)
	}
}

func TestFetchSessionOHLC_ProducesOrderedCandles(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "13:00")

	candles, err := p.FetchSessionOHLC(context.Background(), "2025-10-29", 8, "5m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 96 {
		t.Fatalf("expected 96 5m candles in an 8h window, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			t.Fatalf("expected strictly increasing open times")
		}
	}
}

func TestFetchSessionOHLC_RejectsUnknownInterval(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "13:00")

	if _, err := p.FetchSessionOHLC(context.Background(), "2025-10-29", 8, "3m"); err == nil {
		t.Fatalf("expected error for unrecognized interval")
	}
}

func TestFetchSessionOHLC_RejectsInvalidDate(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "13:00")

	if _, err := p.FetchSessionOHLC(context.Background(), "not-a-date", 8, "5m"); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}

func TestFetchSessionOHLC_HonorsSessionOpenUTC(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "13:00")

	candles, err := p.FetchSessionOHLC(context.Background(), "2025-10-29", 8, "5m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)
	if !candles[0].OpenTime.Equal(want) {
		t.Fatalf("expected first candle open at %s, got %s", want, candles[0].OpenTime)
	}
}

func TestFetchSessionOHLC_DefaultsToMidnightOnInvalidSessionOpen(t *testing.T) {
	p := NewSampleProvider(zap.NewNop(), "EURUSD", decimal.RequireFromString("1.0850"), "not-a-time")

	candles, err := p.FetchSessionOHLC(context.Background(), "2025-10-29", 8, "5m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)
	if !candles[0].OpenTime.Equal(want) {
		t.Fatalf("expected first candle open at midnight, got %s", candles[0].OpenTime)
	}
}

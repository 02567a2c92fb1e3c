package indicators

import (
	"math"
	"testing"

	"ema-hedger-bot/marketdata"

	"github.com/shopspring/decimal"
)

func testCandle(symbol string, open, close float64, ts int64) marketdata.Candle {
	return marketdata.Candle{
		Symbol:    symbol,
		OpenTime:  ts,
		CloseTime: ts + 59_999,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(math.Max(open, close)),
		Low:       decimal.NewFromFloat(math.Min(open, close)),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromInt(1),
	}
}

func TestUpdateEMAWarmup(t *testing.T) {
	engine := NewEMAEngine()
	closes := []float64{1, 2, 3, 4, 5}

	for i, close := range closes[:4] {
		if _, ok := engine.UpdateEMA(testCandle("BTCUSDT", close, close, int64(i)), 5); ok {
			t.Fatalf("candle %d: expected no reading during warm-up", i+1)
		}
	}
	reading, ok := engine.UpdateEMA(testCandle("BTCUSDT", 5, 5, 4), 5)
	if !ok {
		t.Fatal("expected first reading at the period-th candle")
	}
	// First value is the simple average of the warm-up closes.
	if math.Abs(reading.Value-3.0) > 1e-12 {
		t.Fatalf("seed value = %v, want 3.0", reading.Value)
	}
	if reading.Symbol != "BTCUSDT" || reading.Period != 5 {
		t.Fatalf("reading metadata = %+v", reading)
	}
}

func TestUpdateEMARecurrence(t *testing.T) {
	engine := NewEMAEngine()
	const period = 5
	k := 2.0 / float64(period+1)

	warmup := []float64{10, 11, 12, 13, 14}
	var prev float64
	for i, close := range warmup {
		reading, ok := engine.UpdateEMA(testCandle("ETHUSDT", close, close, int64(i)), period)
		if ok {
			prev = reading.Value
		}
	}

	for i, close := range []float64{15.5, 14.2, 16.8, 13.9, 17.1} {
		reading, ok := engine.UpdateEMA(testCandle("ETHUSDT", close, close, int64(10+i)), period)
		if !ok {
			t.Fatalf("step %d: expected a reading", i)
		}
		want := close*k + prev*(1-k)
		if math.Abs(reading.Value-want) > 1e-9 {
			t.Fatalf("step %d: value = %v, want %v", i, reading.Value, want)
		}
		prev = want
	}
}

func TestDetectCrossingNeedsPreviousValue(t *testing.T) {
	engine := NewEMAEngine()
	for i := 0; i < 3; i++ {
		engine.UpdateEMA(testCandle("BTCUSDT", 10, 10, int64(i)), 3)
	}
	// EMA exists, previous EMA does not yet.
	if _, ok := engine.DetectCrossing(testCandle("BTCUSDT", 5, 20, 2), 3); ok {
		t.Fatal("expected no signal before a previous EMA exists")
	}
}

func TestDetectCrossingUpAndDown(t *testing.T) {
	engine := NewEMAEngine()
	process := func(open, close float64, ts int64) (Signal, bool) {
		engine.UpdateEMA(testCandle("BTCUSDT", open, close, ts), 3)
		return engine.DetectCrossing(testCandle("BTCUSDT", open, close, ts), 3)
	}

	process(10, 10, 0)
	process(10, 10, 1)
	process(10, 10, 2) // EMA seeded at 10
	process(10, 10, 3) // previous EMA now exists

	// Open below both EMAs, close above both: upward crossing.
	signal, ok := process(9, 12, 4)
	if !ok || signal.Type != SignalCrossUp {
		t.Fatalf("signal = %+v ok=%v, want CROSS_UP", signal, ok)
	}
	if signal.Price != 12 {
		t.Fatalf("signal price = %v, want 12", signal.Price)
	}
	if math.Abs(signal.EMAValue-11.0) > 1e-12 {
		t.Fatalf("signal ema = %v, want 11", signal.EMAValue)
	}

	// Open above both EMAs, close below both: downward crossing.
	signal, ok = process(12, 8, 5)
	if !ok || signal.Type != SignalCrossDown {
		t.Fatalf("signal = %+v ok=%v, want CROSS_DOWN", signal, ok)
	}
}

// A steady uptrend never crosses: the open of each candle is already above
// the lagging EMA, so even a strong close cannot satisfy the open-side
// condition of the detector.
func TestSteadyUptrendProducesNoCrossing(t *testing.T) {
	engine := NewEMAEngine()
	const period = 50

	ts := int64(0)
	for i := 0; i < period; i++ {
		close := 45.0 + 0.1*float64(i)
		if _, ok := engine.DetectCrossing(testCandle("SOLUSDT", close, close, ts), period); ok {
			t.Fatalf("candle %d: unexpected signal during warm-up", i+1)
		}
		engine.UpdateEMA(testCandle("SOLUSDT", close, close, ts), period)
		ts++
	}
	value, ok := engine.GetCurrentEMA("SOLUSDT")
	if !ok {
		t.Fatal("expected EMA after warm-up")
	}
	if math.Abs(value-47.45) > 1e-9 {
		t.Fatalf("seed = %v, want 47.45", value)
	}

	engine.UpdateEMA(testCandle("SOLUSDT", 49.9, 50.5, ts), period)
	if _, ok := engine.DetectCrossing(testCandle("SOLUSDT", 49.9, 50.5, ts), period); ok {
		t.Fatal("open sits above the previous EMA, no crossing expected")
	}
}

func TestIsAbove(t *testing.T) {
	engine := NewEMAEngine()
	if _, ok := engine.IsAbove("BTCUSDT", 10); ok {
		t.Fatal("expected no answer for an untracked symbol")
	}
	for i := 0; i < 3; i++ {
		engine.UpdateEMA(testCandle("BTCUSDT", 10, 10, int64(i)), 3)
	}
	above, ok := engine.IsAbove("BTCUSDT", 11)
	if !ok || !above {
		t.Fatalf("IsAbove(11) = %v %v, want true", above, ok)
	}
	above, ok = engine.IsAbove("BTCUSDT", 9)
	if !ok || above {
		t.Fatalf("IsAbove(9) = %v %v, want false", above, ok)
	}
}

func TestClearAndTrackedSymbols(t *testing.T) {
	engine := NewEMAEngine()
	engine.UpdateEMA(testCandle("BTCUSDT", 10, 10, 0), 3)
	engine.UpdateEMA(testCandle("ETHUSDT", 10, 10, 0), 3)
	if got := engine.TrackedSymbols(); got != 2 {
		t.Fatalf("tracked = %d, want 2", got)
	}

	engine.Clear("BTCUSDT")
	if got := engine.TrackedSymbols(); got != 1 {
		t.Fatalf("tracked after clear = %d, want 1", got)
	}
	if _, ok := engine.GetCurrentEMA("BTCUSDT"); ok {
		t.Fatal("cleared symbol must have no EMA")
	}
}

// Package marketdata defines the candle ingestion contract and replay sources.
package marketdata

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Candle is one closed kline for a symbol. Price fields decode from either
// JSON strings or numbers; parsing happens once, here, and the decimal values
// are used everywhere downstream.
type Candle struct {
	Symbol    string          `json:"symbol"`
	OpenTime  int64           `json:"openTime"`
	CloseTime int64           `json:"closeTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Validate checks the fields the trading core relies on.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return errors.New("candle: missing symbol")
	}
	if !c.Open.IsPositive() {
		return fmt.Errorf("candle %s: open price must be positive, got %s", c.Symbol, c.Open)
	}
	if !c.Close.IsPositive() {
		return fmt.Errorf("candle %s: close price must be positive, got %s", c.Symbol, c.Close)
	}
	if c.CloseTime < c.OpenTime {
		return fmt.Errorf("candle %s: closeTime %d before openTime %d", c.Symbol, c.CloseTime, c.OpenTime)
	}
	return nil
}

// Source supplies candles in strict arrival order.
type Source interface {
	// Next returns the next candle; ok is false when the source is drained.
	Next() (Candle, bool)
}

// SliceSource replays an in-memory candle sequence.
type SliceSource struct {
	candles []Candle
	pos     int
}

func NewSliceSource(candles []Candle) *SliceSource {
	return &SliceSource{candles: candles}
}

func (s *SliceSource) Next() (Candle, bool) {
	if s.pos >= len(s.candles) {
		return Candle{}, false
	}
	c := s.candles[s.pos]
	s.pos++
	return c, true
}

// ReaderSource replays JSON-lines candle data from a reader. Malformed lines
// are counted and skipped so one bad record never stops a replay.
type ReaderSource struct {
	scanner *bufio.Scanner
	skipped int
}

func NewReaderSource(r io.Reader) *ReaderSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReaderSource{scanner: sc}
}

func (r *ReaderSource) Next() (Candle, bool) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Candle
		if err := json.Unmarshal(line, &c); err != nil {
			r.skipped++
			continue
		}
		if err := c.Validate(); err != nil {
			r.skipped++
			continue
		}
		return c, true
	}
	return Candle{}, false
}

// Skipped reports how many lines were rejected so far.
func (r *ReaderSource) Skipped() int {
	return r.skipped
}

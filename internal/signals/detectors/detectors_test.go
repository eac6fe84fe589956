// internal/signals/detectors/detectors_test.go
package detectors

import (
	"testing"
	"time"

	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

func snapWithVolumes(volumes []float64) market.Snapshot {
	candles := make([]types.Candle, len(volumes))
	for i, v := range volumes {
		candles[i] = types.Candle{
			OpenTime: time.Unix(int64(i*60), 0),
			Close:    100,
			Volume:   v,
		}
	}
	return market.Snapshot{Symbol: "BTCUSDT", Candles: candles}
}

func snapWithCloses(closes []float64) market.Snapshot {
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		candles[i] = types.Candle{
			OpenTime: time.Unix(int64(i*60), 0),
			Close:    c,
			Volume:   10,
		}
	}
	return market.Snapshot{Symbol: "BTCUSDT", Candles: candles}
}

func TestVolumeSpikeDetector(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.VolumeSpikeThreshold = 1.2
	cfg.VolumeLookback = 5

	detector := &VolumeSpikeDetector{}

	tests := []struct {
		name    string
		volumes []float64 // по возрастанию времени, текущая последняя
		want    bool
	}{
		{"spike", []float64{50, 50, 50, 50, 100}, true},   // 100 > 50*1.2
		{"no spike", []float64{50, 50, 50, 50, 55}, false}, // 55 < 60
		{"single candle", []float64{100}, false},
		{"zero avg nonzero current", []float64{0, 0, 10}, true},
		{"zero avg zero current", []float64{0, 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finding := detector.Evaluate(snapWithVolumes(tt.volumes), cfg)
			if got := finding != nil; got != tt.want {
				t.Errorf("volumes %v: got finding=%v, want %v", tt.volumes, got, tt.want)
			}
		})
	}
}

func TestVolumeSpikeConfidenceDeterministic(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.VolumeSpikeThreshold = 1.2

	detector := &VolumeSpikeDetector{}
	snap := snapWithVolumes([]float64{50, 50, 50, 50, 100})

	first := detector.Evaluate(snap, cfg)
	second := detector.Evaluate(snap, cfg)
	if first == nil || second == nil {
		t.Fatal("expected findings")
	}
	if first.Confidence != second.Confidence {
		t.Errorf("confidence must be deterministic: %v vs %v", first.Confidence, second.Confidence)
	}
	if first.Confidence <= 0 || first.Confidence > 1 {
		t.Errorf("confidence out of range: %v", first.Confidence)
	}
}

func TestPriceBreakoutDetector(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.PriceBreakoutThreshold = 1.005

	detector := &PriceBreakoutDetector{}

	tests := []struct {
		name          string
		closes        []float64
		wantDirection string // "" = нет сигнала
	}{
		{"breakout up", []float64{100, 101}, types.DirectionUp},      // 101 > 100.5
		{"breakdown", []float64{101, 100}, types.DirectionDown},      // 100 < 100.497
		{"equal closes", []float64{100, 100}, ""},
		{"inside band", []float64{100, 100.3}, ""},
		{"one candle", []float64{100}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finding := detector.Evaluate(snapWithCloses(tt.closes), cfg)
			if tt.wantDirection == "" {
				if finding != nil {
					t.Fatalf("closes %v: unexpected finding %+v", tt.closes, finding)
				}
				return
			}
			if finding == nil {
				t.Fatalf("closes %v: expected finding", tt.closes)
			}
			if finding.Direction != tt.wantDirection {
				t.Errorf("closes %v: direction = %s, want %s", tt.closes, finding.Direction, tt.wantDirection)
			}
		})
	}
}

func bookSnap(bids, asks []types.PriceLevel) market.Snapshot {
	return market.Snapshot{
		Symbol: "BTCUSDT",
		Book: &types.OrderBookSnapshot{
			Symbol:    "BTCUSDT",
			Bids:      bids,
			Asks:      asks,
			Timestamp: time.Unix(1000, 0),
		},
	}
}

func TestOrderBookImbalanceDetector(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.OrderBookImbalanceThreshold = 2.0

	detector := &OrderBookImbalanceDetector{}

	t.Run("buy imbalance", func(t *testing.T) {
		snap := bookSnap(
			[]types.PriceLevel{{Price: 100, Size: 10}, {Price: 99, Size: 10}, {Price: 98, Size: 10}},
			[]types.PriceLevel{{Price: 101, Size: 5}, {Price: 102, Size: 5}},
		)
		finding := detector.Evaluate(snap, cfg)
		if finding == nil {
			t.Fatal("expected imbalance finding: ratio 30/10 = 3.0 > 2.0")
		}
		if finding.Direction != types.DirectionBuy {
			t.Errorf("direction = %s, want buy", finding.Direction)
		}
		if finding.Evidence["ratio"] != 3.0 {
			t.Errorf("ratio = %v, want 3.0", finding.Evidence["ratio"])
		}
	})

	t.Run("sell imbalance", func(t *testing.T) {
		snap := bookSnap(
			[]types.PriceLevel{{Price: 100, Size: 4}},
			[]types.PriceLevel{{Price: 101, Size: 20}},
		)
		finding := detector.Evaluate(snap, cfg)
		if finding == nil || finding.Direction != types.DirectionSell {
			t.Fatalf("expected sell imbalance, got %+v", finding)
		}
	})

	t.Run("balanced book", func(t *testing.T) {
		snap := bookSnap(
			[]types.PriceLevel{{Price: 100, Size: 10}},
			[]types.PriceLevel{{Price: 101, Size: 9}},
		)
		if finding := detector.Evaluate(snap, cfg); finding != nil {
			t.Errorf("unexpected finding for balanced book: %+v", finding)
		}
	})

	t.Run("empty side", func(t *testing.T) {
		snap := bookSnap([]types.PriceLevel{{Price: 100, Size: 10}}, nil)
		if finding := detector.Evaluate(snap, cfg); finding != nil {
			t.Errorf("empty ask side must yield no finding, got %+v", finding)
		}
	})

	t.Run("no book", func(t *testing.T) {
		if finding := detector.Evaluate(market.Snapshot{Symbol: "BTCUSDT"}, cfg); finding != nil {
			t.Errorf("missing book must yield no finding, got %+v", finding)
		}
	})
}

func TestLiquidityWallDetector(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.LiquidityWallThreshold = 3.0

	detector := &LiquidityWallDetector{}

	t.Run("bid wall", func(t *testing.T) {
		snap := bookSnap(
			[]types.PriceLevel{{Price: 100, Size: 1}, {Price: 99, Size: 1}, {Price: 98, Size: 1}, {Price: 97, Size: 50}},
			[]types.PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 1}},
		)
		finding := detector.Evaluate(snap, cfg)
		if finding == nil {
			t.Fatal("expected wall finding")
		}
		if finding.Direction != types.DirectionBuy {
			t.Errorf("direction = %s, want buy", finding.Direction)
		}
		if finding.Evidence["bid_walls"] != 1 {
			t.Errorf("bid_walls = %v, want 1", finding.Evidence["bid_walls"])
		}
		if finding.Evidence["largest_bid_wall_price"] != 97 {
			t.Errorf("largest wall price = %v, want 97", finding.Evidence["largest_bid_wall_price"])
		}
	})

	t.Run("uniform ladder", func(t *testing.T) {
		snap := bookSnap(
			[]types.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 2}},
			[]types.PriceLevel{{Price: 101, Size: 2}, {Price: 102, Size: 2}},
		)
		if finding := detector.Evaluate(snap, cfg); finding != nil {
			t.Errorf("uniform ladder must yield no walls, got %+v", finding)
		}
	})

	t.Run("empty ladders", func(t *testing.T) {
		snap := bookSnap(nil, nil)
		if finding := detector.Evaluate(snap, cfg); finding != nil {
			t.Errorf("empty ladders must yield no finding, got %+v", finding)
		}
	})
}

func TestWhaleActivityDetector(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.WhaleMinTurnover = 1_000_000
	cfg.WhaleMinChangePct = 5.0

	detector := &WhaleActivityDetector{}

	tickerSnap := func(turnover, change float64) market.Snapshot {
		return market.Snapshot{
			Symbol: "BTCUSDT",
			Ticker: &types.TickerState{
				Symbol:      "BTCUSDT",
				Turnover24h: turnover,
				Change24h:   change,
				UpdatedAt:   time.Unix(1000, 0),
			},
		}
	}

	tests := []struct {
		name          string
		turnover      float64
		change        float64
		wantDirection string
	}{
		{"whale up", 5_000_000, 8.0, types.DirectionUp},
		{"whale down", 5_000_000, -8.0, types.DirectionDown},
		{"turnover too low", 500_000, 8.0, ""},
		{"change too small", 5_000_000, 2.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finding := detector.Evaluate(tickerSnap(tt.turnover, tt.change), cfg)
			if tt.wantDirection == "" {
				if finding != nil {
					t.Fatalf("unexpected finding %+v", finding)
				}
				return
			}
			if finding == nil {
				t.Fatal("expected finding")
			}
			if finding.Direction != tt.wantDirection {
				t.Errorf("direction = %s, want %s", finding.Direction, tt.wantDirection)
			}
		})
	}
}

func TestDetectorEnablementFlags(t *testing.T) {
	cfg := types.DefaultScreenerConfig()
	cfg.SpoofDetectionEnabled = false
	cfg.WhaleAlertsEnabled = false
	cfg.LiquidityWallsEnabled = false

	for _, d := range All() {
		switch d.Type() {
		case types.FindingVolumeSpike, types.FindingPriceBreakout:
			if !d.Enabled(cfg) {
				t.Errorf("%s must always be enabled", d.Name())
			}
		default:
			if d.Enabled(cfg) {
				t.Errorf("%s must respect its enable flag", d.Name())
			}
		}
	}
}

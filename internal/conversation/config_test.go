package conversation

import "testing"

func TestShouldCompressBoundary(t *testing.T) {
	cfg := DefaultConfig() // keep 10, block 5

	tests := []struct {
		name        string
		historySize int
		want        bool
	}{
		{"empty", 0, false},
		{"within window", 10, false},
		{"one short of boundary", 14, false},
		{"exact boundary", 15, true},
		{"past boundary", 16, true},
		{"far past", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ShouldCompress(tt.historySize); got != tt.want {
				t.Errorf("ShouldCompress(%d) = %v, want %v", tt.historySize, got, tt.want)
			}
		})
	}
}

func TestShouldCompressFormula(t *testing.T) {
	for keep := MinKeepLastN; keep <= 20; keep++ {
		for block := MinCompressionBlockSize; block <= 10; block++ {
			cfg := ContextConfig{KeepLastN: keep, CompressionBlockSize: block}
			boundary := keep + block
			if cfg.ShouldCompress(boundary - 1) {
				t.Errorf("keep=%d block=%d: fired below boundary", keep, block)
			}
			if !cfg.ShouldCompress(boundary) {
				t.Errorf("keep=%d block=%d: did not fire at boundary", keep, block)
			}
		}
	}
}

func TestNormalizeClamps(t *testing.T) {
	tests := []struct {
		name string
		in   ContextConfig
		want ContextConfig
	}{
		{
			name: "below minimums",
			in:   ContextConfig{KeepLastN: 1, CompressionBlockSize: 1, MaxSummaryBlocks: -3, CompressionThreshold: 0.01},
			want: ContextConfig{KeepLastN: 2, CompressionBlockSize: 2, MaxSummaryBlocks: 1, CompressionThreshold: 0.1},
		},
		{
			name: "above maximums",
			in:   ContextConfig{KeepLastN: 500, CompressionBlockSize: 99, MaxSummaryBlocks: 40, CompressionThreshold: 2.5},
			want: ContextConfig{KeepLastN: 50, CompressionBlockSize: 20, MaxSummaryBlocks: 20, CompressionThreshold: 1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Normalize()
			if cfg.KeepLastN != tt.want.KeepLastN {
				t.Errorf("KeepLastN = %d, want %d", cfg.KeepLastN, tt.want.KeepLastN)
			}
			if cfg.CompressionBlockSize != tt.want.CompressionBlockSize {
				t.Errorf("CompressionBlockSize = %d, want %d", cfg.CompressionBlockSize, tt.want.CompressionBlockSize)
			}
			if cfg.MaxSummaryBlocks != tt.want.MaxSummaryBlocks {
				t.Errorf("MaxSummaryBlocks = %d, want %d", cfg.MaxSummaryBlocks, tt.want.MaxSummaryBlocks)
			}
			if cfg.CompressionThreshold != tt.want.CompressionThreshold {
				t.Errorf("CompressionThreshold = %v, want %v", cfg.CompressionThreshold, tt.want.CompressionThreshold)
			}
		})
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	var cfg ContextConfig
	cfg.Normalize()

	def := DefaultConfig()
	if cfg.KeepLastN != def.KeepLastN || cfg.CompressionBlockSize != def.CompressionBlockSize ||
		cfg.MaxSummaryBlocks != def.MaxSummaryBlocks || cfg.SummaryMaxTokens != def.SummaryMaxTokens {
		t.Errorf("zero config not filled with defaults: %+v", cfg)
	}
	if cfg.Strategy != StrategySlidingWindow {
		t.Errorf("Strategy = %q, want sliding_window", cfg.Strategy)
	}
}

func TestPresets(t *testing.T) {
	cons := ConservativeConfig()
	if cons.KeepLastN != 20 || cons.CompressionBlockSize != 10 || cons.MaxSummaryBlocks != 3 || cons.CompressionThreshold != 0.8 {
		t.Errorf("conservative preset = %+v", cons)
	}

	agg := AggressiveConfig()
	if agg.KeepLastN != 6 || agg.CompressionBlockSize != 4 || agg.MaxSummaryBlocks != 8 || agg.CompressionThreshold != 0.6 {
		t.Errorf("aggressive preset = %+v", agg)
	}
}

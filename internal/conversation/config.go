package conversation

// Strategy selects how the engine manages a growing history.
type Strategy string

const (
	// StrategySlidingWindow keeps only the recent window, compressing the rest.
	StrategySlidingWindow Strategy = "sliding_window"
	// StrategyStickyFacts additionally pins extracted facts into the system prompt.
	StrategyStickyFacts Strategy = "sticky_facts"
	// StrategyBranching enables forkable conversation branches.
	StrategyBranching Strategy = "branching"
)

// Clamp bounds for config normalization.
const (
	MinKeepLastN            = 2
	MaxKeepLastN            = 50
	MinCompressionBlockSize = 2
	MaxCompressionBlockSize = 20
	MinMaxSummaryBlocks     = 1
	MaxMaxSummaryBlocks     = 20
)

// ContextConfig holds the tunables of the context-management engine.
type ContextConfig struct {
	Strategy                 Strategy `json:"strategy" mapstructure:"strategy" yaml:"strategy"`
	KeepLastN                int      `json:"keep_last_n" mapstructure:"keep_last_n" yaml:"keep_last_n"`
	CompressionBlockSize     int      `json:"compression_block_size" mapstructure:"compression_block_size" yaml:"compression_block_size"`
	MaxSummaryBlocks         int      `json:"max_summary_blocks" mapstructure:"max_summary_blocks" yaml:"max_summary_blocks"`
	CompressionThreshold     float64  `json:"compression_threshold" mapstructure:"compression_threshold" yaml:"compression_threshold"`
	SummaryMaxTokens         int      `json:"summary_max_tokens" mapstructure:"summary_max_tokens" yaml:"summary_max_tokens"`
	MaxFacts                 int      `json:"max_facts" mapstructure:"max_facts" yaml:"max_facts"`
	EnableFactsExtraction    bool     `json:"enable_facts_extraction" mapstructure:"enable_facts_extraction" yaml:"enable_facts_extraction"`
	EnableLLMFactsExtraction bool     `json:"enable_llm_facts_extraction" mapstructure:"enable_llm_facts_extraction" yaml:"enable_llm_facts_extraction"`
	AgentPrimer              string   `json:"agent_primer,omitempty" mapstructure:"agent_primer" yaml:"agent_primer,omitempty"`
	SystemPrompt             string   `json:"system_prompt,omitempty" mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Model                    string   `json:"model" mapstructure:"model" yaml:"model"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() ContextConfig {
	return ContextConfig{
		Strategy:              StrategySlidingWindow,
		KeepLastN:             10,
		CompressionBlockSize:  5,
		MaxSummaryBlocks:      5,
		CompressionThreshold:  0.7,
		SummaryMaxTokens:      200,
		MaxFacts:              50,
		EnableFactsExtraction: true,
	}
}

// ConservativeConfig keeps a large verbatim window and compresses rarely.
func ConservativeConfig() ContextConfig {
	cfg := DefaultConfig()
	cfg.KeepLastN = 20
	cfg.CompressionBlockSize = 10
	cfg.MaxSummaryBlocks = 3
	cfg.CompressionThreshold = 0.8
	return cfg
}

// AggressiveConfig compresses early and keeps many small blocks.
func AggressiveConfig() ContextConfig {
	cfg := DefaultConfig()
	cfg.KeepLastN = 6
	cfg.CompressionBlockSize = 4
	cfg.MaxSummaryBlocks = 8
	cfg.CompressionThreshold = 0.6
	return cfg
}

// ShouldCompress reports whether a history of the given size has enough
// messages outside the verbatim window to fill a compression block.
func (c ContextConfig) ShouldCompress(historySize int) bool {
	return historySize-c.KeepLastN >= c.CompressionBlockSize
}

// Normalize clamps out-of-range values into their supported bounds and
// fills zero values with defaults.
func (c *ContextConfig) Normalize() {
	def := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.KeepLastN == 0 {
		c.KeepLastN = def.KeepLastN
	}
	if c.CompressionBlockSize == 0 {
		c.CompressionBlockSize = def.CompressionBlockSize
	}
	if c.MaxSummaryBlocks == 0 {
		c.MaxSummaryBlocks = def.MaxSummaryBlocks
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = def.CompressionThreshold
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = def.SummaryMaxTokens
	}
	if c.MaxFacts == 0 {
		c.MaxFacts = def.MaxFacts
	}

	c.KeepLastN = clamp(c.KeepLastN, MinKeepLastN, MaxKeepLastN)
	c.CompressionBlockSize = clamp(c.CompressionBlockSize, MinCompressionBlockSize, MaxCompressionBlockSize)
	c.MaxSummaryBlocks = clamp(c.MaxSummaryBlocks, MinMaxSummaryBlocks, MaxMaxSummaryBlocks)
	if c.CompressionThreshold < 0.1 {
		c.CompressionThreshold = 0.1
	}
	if c.CompressionThreshold > 1.0 {
		c.CompressionThreshold = 1.0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

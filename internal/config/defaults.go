package config

import (
	"time"

	"github.com/spf13/viper"

	"loom/internal/conversation"
)

// SetDefaults installs default values for every configuration key.
func SetDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.rate_limit.enabled", true)
	viper.SetDefault("server.rate_limit.requests_per_minute", 120)
	viper.SetDefault("server.rate_limit.burst", 20)
	viper.SetDefault("server.rate_limit.cleanup_interval", 5*time.Minute)

	// Provider
	viper.SetDefault("provider.name", "openai")
	viper.SetDefault("provider.base_url", "https://api.openai.com/v1")
	viper.SetDefault("provider.timeout", "120s")

	// Context engine
	def := conversation.DefaultConfig()
	viper.SetDefault("context.strategy", string(def.Strategy))
	viper.SetDefault("context.keep_last_n", def.KeepLastN)
	viper.SetDefault("context.compression_block_size", def.CompressionBlockSize)
	viper.SetDefault("context.max_summary_blocks", def.MaxSummaryBlocks)
	viper.SetDefault("context.compression_threshold", def.CompressionThreshold)
	viper.SetDefault("context.summary_max_tokens", def.SummaryMaxTokens)
	viper.SetDefault("context.max_facts", def.MaxFacts)
	viper.SetDefault("context.enable_facts_extraction", def.EnableFactsExtraction)
	viper.SetDefault("context.enable_llm_facts_extraction", false)
	viper.SetDefault("context.model", "gpt-4o-mini")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage
	viper.SetDefault("storage.driver", "sqlite")

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.autosave_spec", "@every 1m")
	viper.SetDefault("scheduler.janitor_spec", "@every 1h")
	viper.SetDefault("scheduler.stale_branch_ttl", "720h")

	// Prompts
	viper.SetDefault("prompts.dir", "")
	viper.SetDefault("prompts.hot_reload", true)
}

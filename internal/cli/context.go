package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"loom/internal/config"
	"loom/internal/provider"
	"loom/internal/runner"
	"loom/internal/storage"
	"loom/pkg/logger"
)

// CLIContext carries the loaded configuration and lazily opened
// resources across one command invocation.
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	StoragePath string

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error

	managerOnce sync.Once
	manager     *runner.Manager
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		StoragePath: storagePath,
	}
}

// GetStorage opens the database on first use.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.StoragePath)
	})
	return c.storage, c.storageErr
}

// Provider builds the chat backend from the provider config.
func (c *CLIContext) Provider() provider.Provider {
	p := c.Config.Provider
	return provider.NewHTTPProvider(provider.HTTPConfig{
		Name:    p.Name,
		BaseURL: p.BaseURL,
		APIKey:  p.APIKey,
		Models:  p.Models,
		Timeout: p.GetTimeout(),
	})
}

// GetManager returns the session registry, opening storage on first use.
func (c *CLIContext) GetManager() (*runner.Manager, error) {
	var err error
	c.managerOnce.Do(func() {
		var db *storage.DB
		db, err = c.GetStorage()
		if err != nil {
			return
		}
		c.manager = runner.NewManager(c.Provider(), c.Config.Context, db)
	})
	if err != nil {
		return nil, err
	}
	return c.manager, nil
}

// Close flushes loaded sessions and releases resources.
func (c *CLIContext) Close() error {
	if c.manager != nil {
		if err := c.manager.FlushAll(); err != nil {
			c.Log().Warn().Err(err).Msg("flush on close failed")
		}
	}
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log returns the context logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}

package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/ivlev/clipweave/internal/config"
	"github.com/ivlev/clipweave/internal/logging"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

// ensureConfig loads the dotenv file, the configuration and the logger once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
			if err := config.LoadEnv(*c.envFlag); err != nil {
				c.configErr = err
				return
			}
		}

		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}

		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	if c.logger == nil {
		return logging.NewNop()
	}
	return c.logger
}

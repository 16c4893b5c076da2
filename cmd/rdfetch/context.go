package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/config"
	"github.com/Zerr0-C00L/rdfetch/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     config.Config
	configErr  error

	// build is swapped in tests
	build func(ctx context.Context, cfg config.Config, logger *slog.Logger, opts app.Options) (*app.App, error)
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		build:      app.Build,
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				if err := os.Setenv("CONFIG_FILE", path); err != nil {
					c.configErr = err
					return
				}
			}
		}
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes to stderr so stdout stays parseable.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	level := c.config.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: c.config.LogFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

func (c *commandContext) withApp(cmd *cobra.Command, opts app.Options, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stack, err := c.build(cmd.Context(), cfg, c.logger(cmd), opts)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer stack.Close()
	return fn(stack)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

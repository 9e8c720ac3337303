// Package cli implements the vektor command-line interface.
//
// The commands are:
//   - gui: the interactive desktop application
//   - trace: run the pipeline headless and write every stage to disk
//   - params: print the effective configuration as TOML
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vektor/internal/config"
	"vektor/internal/engine"
	"vektor/internal/engine/cvengine"
)

// Version is set by the entry point.
var Version = "dev"

// CLI holds shared state for all commands.
type CLI struct {
	Logger *logrus.Logger

	// NewEngine builds the processing engine. Tests replace it.
	NewEngine func(logrus.FieldLogger) engine.Engine

	configPath string
	verbose    bool
	cfg        config.Config
}

func New(logger *logrus.Logger) *CLI {
	return &CLI{
		Logger: logger,
		NewEngine: func(l logrus.FieldLogger) engine.Engine {
			return cvengine.New(l)
		},
		cfg: config.Default(),
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "vektor",
		Short:        "vektor traces raster images into Bézier curves",
		Long:         `vektor turns a raster image into a set of coloured cubic Bézier curves through an incremental edge-detection pipeline, and shows or exports every intermediate stage.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")

	root.AddCommand(c.guiCommand())
	root.AddCommand(c.traceCommand())
	root.AddCommand(c.paramsCommand())
	return root
}

// Execute runs the command tree.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *CLI) setup() error {
	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	ConfigureLogger(c.Logger, c.cfg.Log, c.verbose)
	c.Logger.WithFields(logrus.Fields{
		"version": Version,
		"config":  c.configPath,
	}).Debug("Configuration loaded")
	return nil
}

// ConfigureLogger applies the level and format. Verbose forces debug with
// coloured text output.
func ConfigureLogger(logger *logrus.Logger, cfg config.LogConfig, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		return
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func (c *CLI) paramsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Write(cmd.OutOrStdout(), c.cfg); err != nil {
				return fmt.Errorf("params: %w", err)
			}
			return nil
		},
	}
}

// Package cli implements the formaudit command line.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "formaudit",
		Short:         "Audit checkout forms for autofill readiness",
		Long:          "formaudit collects the form fields and meta elements of a page and scores how well payment inputs declare their autocomplete tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.config/formaudit/config.toml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level from the config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAuditCmd(g))
	cmd.AddCommand(newGatherCmd(g))
	return cmd
}

func (g *globalFlags) load() (config.Settings, *zap.Logger, error) {
	settings, err := config.LoadOrCreate(g.configPath)
	if err != nil {
		return config.Settings{}, nil, err
	}
	level := settings.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	return settings, logging.Must(level, settings.LogFormat), nil
}

func Execute() error {
	return newRootCmd().Execute()
}

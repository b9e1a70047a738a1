package main

import (
	"github.com/spf13/cobra"

	"duebot/internal/app"
	"duebot/internal/config"
	"duebot/pkg/logx"
)

type globals struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "duebot",
		Short:         "Task reminders with recurrence, delivered to Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadDotEnv(g.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level for one-shot commands")

	root.AddCommand(
		newRunCmd(g),
		newUpcomingCmd(g),
		newNextCmd(),
		newTaskCmd(g),
	)
	return root
}

func (g *globals) logger() logx.Logger {
	return logx.NewConsole(g.logLevel)
}

func (g *globals) loadConfig() (*config.Config, error) {
	return config.NewConfigManager(g.configPath).Load()
}

// openCore loads the config and opens the task store for a one-shot command.
func (g *globals) openCore() (*app.Core, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenCore(cfg, g.logger(), nil, nil)
}

package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeu5/morel/config"
)

var (
	logRoot  string
	logLevel string
	settings *config.Settings
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "morel",
		Short:         "Model based offline policy optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if logRoot != "" {
				s.LogRoot = logRoot
			}
			if logLevel != "" {
				s.LogLevel = logLevel
			}
			settings = s
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.Level()})))
			return nil
		},
	}
	rootCommand.PersistentFlags().StringVar(&logRoot, "log-root", "", "Directory of the experiment outputs (default $MOREL_LOG_ROOT or ./logging_policy)")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default $MOREL_LOG_LEVEL or info)")
	// adding the subcommands here
	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(CollectCommand())
	rootCommand.AddCommand(EvaluateCommand())
	return rootCommand
}

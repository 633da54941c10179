package commands

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/zeu5/morel/config"
	"github.com/zeu5/morel/morel"
)

func TrainCommand() *cobra.Command {
	var (
		output   string
		jobFile  string
		includes []string
		serve    string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the model ensemble and optimize a policy on an offline dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.Load(jobFile, includes...)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			exp := morel.NewExperiment(job, morel.Options{
				Output:  output,
				LogRoot: settings.LogRoot,
				Serve:   serve,
				Out:     cmd.OutOrStdout(),
			})
			return exp.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Name of the experiment, results are stored under the log root")
	cmd.Flags().StringVarP(&jobFile, "config", "c", "", "Path to the job file with the experiment parameters")
	cmd.Flags().StringSliceVarP(&includes, "include", "i", nil, "Job files overlaid on the config in order")
	cmd.Flags().StringVar(&serve, "serve", "", "Serve the progress over HTTP on this address")
	cmd.MarkFlagRequired("output")
	cmd.MarkFlagRequired("config")
	return cmd
}

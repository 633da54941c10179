package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/morel/checkpoint"
	"github.com/zeu5/morel/dataset"
	"github.com/zeu5/morel/envs"
	"github.com/zeu5/morel/logger"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

func CollectCommand() *cobra.Command {
	var (
		envName    string
		episodes   int
		seed       int64
		out        string
		policyFile string
		noise      float64
		actRepeat  int
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect an offline dataset in an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envs.Make(envName, actRepeat)
			if err != nil {
				return err
			}
			env.Seed(seed)
			var p *policy.GaussianMLP
			if policyFile != "" {
				p = &policy.GaussianMLP{}
				if err := checkpoint.Load(policyFile, p); err != nil {
					return err
				}
			}
			paths := dataset.Collect(env, p, episodes, noise, rand.New(rand.NewSource(uint64(seed))))
			if err := dataset.Save(out, paths); err != nil {
				return err
			}
			summary := map[string]float64{
				"episodes":    float64(len(paths)),
				"num_samples": float64(types.NumSamples(paths)),
				"mean_return": types.MeanReturn(paths),
			}
			if metric, ok := env.EvaluateSuccess(paths); ok {
				summary["success"] = metric
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d paths to %s\n", len(paths), out)
			logger.PrintTable(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().IntVarP(&episodes, "episodes", "e", 100, "Number of episodes to collect")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed of the environment and the action noise")
	cmd.Flags().StringVar(&out, "out", "data.pickle", "Dataset file (.json or gob)")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Policy checkpoint, uniform random actions when empty")
	cmd.Flags().Float64Var(&noise, "noise", 0.1, "Standard deviation of the noise added to policy actions")
	cmd.Flags().IntVar(&actRepeat, "act-repeat", 1, "Action repeat of the environment")
	cmd.MarkFlagRequired("env")
	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/morel/checkpoint"
	"github.com/zeu5/morel/envs"
	"github.com/zeu5/morel/logger"
	"github.com/zeu5/morel/npg"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"gonum.org/v1/gonum/stat"
)

func EvaluateCommand() *cobra.Command {
	var (
		envName    string
		policyFile string
		episodes   int
		seed       int64
		noise      bool
		actRepeat  int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Roll out a saved policy in the real environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envs.Make(envName, actRepeat)
			if err != nil {
				return err
			}
			env.Seed(seed)
			var p policy.GaussianMLP
			if err := checkpoint.Load(policyFile, &p); err != nil {
				return err
			}
			if p.ObsDim != env.ObservationDim() || p.ActDim != env.ActionDim() {
				return fmt.Errorf("policy %s does not match %s", policyFile, envName)
			}
			p.Seed = seed
			paths := npg.EvaluatePolicy(env, &p, episodes, noise)

			returns := make([]float64, len(paths))
			for i, path := range paths {
				returns[i] = path.Return()
			}
			mean, std := stat.MeanStdDev(returns, nil)
			summary := map[string]float64{
				"episodes":    float64(len(paths)),
				"eval_score":  mean,
				"std_return":  std,
				"num_samples": float64(types.NumSamples(paths)),
			}
			if metric, ok := env.EvaluateSuccess(paths); ok {
				summary["eval_metric"] = metric
			}
			logger.PrintTable(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Policy checkpoint")
	cmd.Flags().IntVarP(&episodes, "episodes", "e", 10, "Number of evaluation episodes")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed of the environment")
	cmd.Flags().BoolVar(&noise, "noise", false, "Sample actions instead of using the mean action")
	cmd.Flags().IntVar(&actRepeat, "act-repeat", 1, "Action repeat of the environment")
	cmd.MarkFlagRequired("env")
	cmd.MarkFlagRequired("policy")
	return cmd
}

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fedsim/fedsim/sim"
	"github.com/fedsim/fedsim/sim/scenario"
)

// sensitivityConfig holds the flags of the sensitivity subcommand.
type sensitivityConfig struct {
	N     int
	M     int
	Gamma float64
	Norm  string
	Query string
	Mean  float64
	Std   float64
	Seed  int64
}

var sensFlags sensitivityConfig

// sensitivityCmd estimates a query's sensitivity against a normal population
var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity",
	Short: "Estimate the sensitivity of a query by sampling",
	Run: func(cmd *cobra.Command, args []string) {
		v := newEnvConfig(cmd.Flags())
		setLogLevel(v.GetString("log"))

		est, err := estimateSensitivity(sensitivityFromConfig(v))
		if err != nil {
			logrus.Fatalf("sensitivity sampling failed; %v", err)
		}
		fmt.Fprintf(os.Stdout, "Certified sensitivity: %.6g\n", est.Certified)
		fmt.Fprintf(os.Stdout, "Mean sampled distance: %.6g\n", est.Mean)
	},
}

// sensitivityFromConfig reads the subcommand's flags, leaving M and Gamma
// zero unless they were set.
func sensitivityFromConfig(v *viper.Viper) sensitivityConfig {
	cfg := sensitivityConfig{
		N:     v.GetInt("n"),
		Norm:  v.GetString("norm"),
		Query: v.GetString("query"),
		Mean:  v.GetFloat64("mean"),
		Std:   v.GetFloat64("std"),
		Seed:  v.GetInt64("seed"),
	}
	if v.IsSet("m") {
		cfg.M = v.GetInt("m")
	}
	if v.IsSet("gamma") {
		cfg.Gamma = v.GetFloat64("gamma")
	}
	return cfg
}

// estimateSensitivity runs the sensitivity sampler. Zero M or Gamma means unset.
func estimateSensitivity(cfg sensitivityConfig) (scenario.SensitivityEstimate, error) {
	if !scenario.ValidNorms[cfg.Norm] {
		return scenario.SensitivityEstimate{}, fmt.Errorf("unknown norm %q; valid: l1, l2", cfg.Norm)
	}
	if !scenario.ValidQueries[cfg.Query] {
		return scenario.SensitivityEstimate{}, fmt.Errorf("unknown query %q; valid: identity, mean", cfg.Query)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	defer rng.Teardown()

	oracle, err := sim.NewNormalDistribution(cfg.Mean, cfg.Std, rng.ForSubsystem(sim.SubsystemSampler))
	if err != nil {
		return scenario.SensitivityEstimate{}, err
	}
	samplerCfg := sim.SamplerConfig{N: cfg.N}
	if cfg.M > 0 {
		samplerCfg.M = &cfg.M
	}
	if cfg.Gamma > 0 {
		samplerCfg.Gamma = &cfg.Gamma
	}
	certified, mean, err := sim.SensitivitySampler{}.SampleSensitivity(
		scenario.NewQuery(cfg.Query), scenario.NewNorm(cfg.Norm), oracle, samplerCfg)
	if err != nil {
		return scenario.SensitivityEstimate{}, err
	}
	return scenario.SensitivityEstimate{Certified: certified, Mean: mean}, nil
}

func init() {
	sensitivityCmd.Flags().IntVar(&sensFlags.N, "n", 100, "Records per sampled database")
	sensitivityCmd.Flags().IntVar(&sensFlags.M, "m", 0, "Number of sampled database pairs")
	sensitivityCmd.Flags().Float64Var(&sensFlags.Gamma, "gamma", 0, "Target confidence gap in (0,1)")
	sensitivityCmd.Flags().StringVar(&sensFlags.Norm, "norm", "l1", "Sensitivity norm (l1, l2)")
	sensitivityCmd.Flags().StringVar(&sensFlags.Query, "query", "mean", "Query (identity, mean)")
	sensitivityCmd.Flags().Float64Var(&sensFlags.Mean, "mean", 0, "Mean of the normal population")
	sensitivityCmd.Flags().Float64Var(&sensFlags.Std, "std", 1, "Standard deviation of the normal population")
	sensitivityCmd.Flags().Int64Var(&sensFlags.Seed, "seed", 42, "Seed for the population oracle")
	sensitivityCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

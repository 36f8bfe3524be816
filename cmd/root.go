package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fedsim/fedsim/sim/scenario"
	"github.com/fedsim/fedsim/sim/trace"
)

var (
	// CLI flags for scenario runs
	configPath string // Scenario YAML file
	seed       int64  // Seed overriding the scenario's seed
	logLevel   string // Log verbosity level
	maxQueries int    // Query rounds overriding the scenario's max_queries
	traceLevel string // Trace level overriding the scenario's trace
	traceDB    string // SQLite file receiving the decision trace
	metricsOut string // File receiving the ledger metrics in text format
)

// envPrefix namespaces environment overrides, e.g. FEDSIM_SEED or FEDSIM_MAX_QUERIES.
const envPrefix = "FEDSIM"

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fedsim",
	Short: "Differential-privacy access control for federated learning simulations",
}

// runCmd executes a scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a federated privacy scenario",
	Run: func(cmd *cobra.Command, args []string) {
		v := newEnvConfig(cmd.Flags())
		setLogLevel(v.GetString("log"))

		configPath = v.GetString("config")
		if configPath == "" {
			logrus.Fatalf("Scenario file not provided. Use --config.")
		}
		spec, err := scenario.LoadScenarioSpec(configPath)
		if err != nil {
			logrus.Fatalf("unable to load scenario; %v", err)
		}
		applyRunOverrides(v, spec)
		traceDB = v.GetString("trace-db")
		if traceDB != "" {
			spec.Trace = string(trace.TraceLevelDecisions)
		}

		startTime := time.Now()
		result, err := scenario.Run(spec)
		if err != nil {
			logrus.Fatalf("scenario failed; %v", err)
		}
		printResult(os.Stdout, spec, result, time.Since(startTime))

		if traceDB != "" {
			if err := trace.ExportSQLite(context.Background(), result.Trace, result.RunID, traceDB); err != nil {
				logrus.Fatalf("trace export failed; %v", err)
			}
			logrus.Infof("Decision trace written to %s (run %s)", traceDB, result.RunID)
		}
		if metricsOut = v.GetString("metrics-out"); metricsOut != "" {
			if err := prometheus.WriteToTextfile(metricsOut, result.Metrics); err != nil {
				logrus.Fatalf("metrics export failed; %v", err)
			}
		}
		logrus.Info("Scenario complete.")
	},
}

// newEnvConfig layers FEDSIM_* environment variables under the command's
// flags. An explicitly passed flag wins over the environment.
func newEnvConfig(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		logrus.Fatalf("binding flags: %v", err)
	}
	return v
}

// applyRunOverrides copies flags or environment variables that were
// actually set over the scenario's values.
func applyRunOverrides(v *viper.Viper, spec *scenario.ScenarioSpec) {
	if v.IsSet("seed") {
		spec.Seed = v.GetInt64("seed")
	}
	if v.IsSet("max-queries") {
		spec.MaxQueries = v.GetInt("max-queries")
	}
	if v.IsSet("trace") {
		spec.Trace = v.GetString("trace")
	}
}

// printResult writes the human-readable run summary.
func printResult(w io.Writer, spec *scenario.ScenarioSpec, result *scenario.Result, elapsed time.Duration) {
	fmt.Fprintln(w, "=== Scenario Results ===")
	fmt.Fprintf(w, "Run:         %s\n", result.RunID)
	fmt.Fprintf(w, "Dataset:     %s (%d records on %d nodes)\n", spec.Data.Identifier, spec.Data.Records, spec.Data.Nodes)
	fmt.Fprintf(w, "Mechanism:   %s\n", mechanismName(spec))
	if result.Sensitivity != nil {
		fmt.Fprintf(w, "Sensitivity: %.6g certified, %.6g mean\n", result.Sensitivity.Certified, result.Sensitivity.Mean)
	}
	fmt.Fprintf(w, "Rounds:      %d\n", result.Rounds)
	fmt.Fprintf(w, "Granted:     %d\n", result.Granted)
	fmt.Fprintf(w, "Denied:      %d\n", result.Denied)
	fmt.Fprintf(w, "Exhausted:   %t\n", result.Exhausted)
	for i, m := range result.RoundMeans {
		fmt.Fprintf(w, "  round %3d: mean answer %.6g\n", i+1, m)
	}

	ids := make([]string, 0, len(result.Spent))
	for id := range result.Spent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Spent %-12s %s\n", id+":", result.Spent[id])
	}
	if result.Summary != nil && result.Summary.TotalDecisions > 0 {
		fmt.Fprintf(w, "Trace:       %d decisions, %d denied, max spent epsilon %.6g\n",
			result.Summary.TotalDecisions, result.Summary.DeniedCount, result.Summary.MaxSpentEpsilon)
	}
	fmt.Fprintf(w, "Elapsed:     %s\n", elapsed.Round(time.Millisecond))
}

func mechanismName(spec *scenario.ScenarioSpec) string {
	if !spec.IsPrivate() {
		return "none"
	}
	return spec.Mechanism.Type
}

func setLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", name)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to the scenario YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed overriding the scenario seed")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().IntVar(&maxQueries, "max-queries", 100, "Query rounds overriding the scenario max_queries")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&traceDB, "trace-db", "", "SQLite file to append the decision trace to (implies --trace decisions)")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "File to write ledger metrics to in Prometheus text format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sensitivityCmd)
}

// Command netsight runs the synthetic network traffic anomaly dashboard:
// it generates a traffic table, scores it with an isolation forest and
// reports which records look anomalous.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hed1ad/netsight/internal/dashboard"
	"github.com/hed1ad/netsight/pkg/traffic"
)

var (
	cfgFile       string
	sampleSize    int
	contamination float64
	seed          int64
	jsonOut       bool
	listenAddr    string

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "netsight",
	Short: "Synthetic network traffic anomaly scoring",
	Long: `Netsight synthesizes network traffic records, scores them with an
unsupervised Isolation Forest ensemble and reports per-record anomaly
labels with confidence scores.

The generator is deterministic for a fixed seed, and scoring is a batch
fit-and-predict: every cycle re-fits the model from scratch.`,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run one generate/score cycle and print the result",
	Long: `Run a single cycle with the configured sample size and contamination
ratio, then print the anomaly report.

Examples:
  netsight report
  netsight report --samples 500 --contamination 0.05
  netsight report --json`,
	RunE: runReport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshots over an HTTP JSON API",
	Long: `Expose the dashboard pipeline over HTTP. Each request triggers a
fresh cycle; sample size, contamination and seed can be overridden per
request via query parameters.

Endpoints:
  GET /api/snapshot   full scored table plus display metrics
  GET /api/anomalies  anomalous subset only
  GET /healthz        liveness probe
  GET /metrics        Prometheus metrics`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netsight %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().IntVarP(&sampleSize, "samples", "n", 100, "records per cycle (clamped to [100, 1000])")
	rootCmd.PersistentFlags().Float64VarP(&contamination, "contamination", "c", 0.1, "expected anomaly fraction (clamped to [0.01, 0.5])")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", traffic.DefaultSeed, "random seed for generator and model")

	reportCmd.Flags().BoolVar(&jsonOut, "json", false, "print the snapshot as JSON")
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")

	viper.BindPFlag("cycle.samples", rootCmd.PersistentFlags().Lookup("samples"))
	viper.BindPFlag("cycle.contamination", rootCmd.PersistentFlags().Lookup("contamination"))
	viper.BindPFlag("cycle.seed", rootCmd.PersistentFlags().Lookup("seed"))
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/netsight")
	}

	viper.SetDefault("cycle.samples", 100)
	viper.SetDefault("cycle.contamination", 0.1)
	viper.SetDefault("cycle.seed", traffic.DefaultSeed)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("NETSIGHT")
	viper.AutomaticEnv()
}

func setupLogging() {
	switch viper.GetString("logging.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

func cycleParams() dashboard.Params {
	return dashboard.Params{
		SampleSize:    viper.GetInt("cycle.samples"),
		Contamination: viper.GetFloat64("cycle.contamination"),
		Seed:          viper.GetInt64("cycle.seed"),
	}.Clamped()
}

func runReport(cmd *cobra.Command, args []string) error {
	setupLogging()

	params := cycleParams()
	pipeline := dashboard.NewPipeline()

	snap, err := pipeline.Refresh(params)
	if snap == nil {
		return err
	}
	if snap.Degraded {
		log.Warn().Msg("Rendering without anomaly information")
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Total records:      %d\n", snap.TotalRecords)
	fmt.Printf("Anomalies detected: %d\n", snap.AnomalyCount)
	fmt.Printf("Anomaly rate:       %.1f%%\n\n", snap.AnomalyRate*100)

	if len(snap.Anomalies) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSOURCE\tPORT\tSENT\tRECEIVED\tREQUESTS\tCONFIDENCE")
	for _, r := range snap.Anomalies {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.4f\n",
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.SourceAddress, r.Port, r.BytesSent, r.BytesReceived, r.RequestCount, r.Confidence)
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg := dashboard.ServerConfig{
		Addr:     viper.GetString("server.addr"),
		Defaults: cycleParams(),
	}
	server := dashboard.NewServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}

func main() {
	// Any error escaping a command surfaces as a message, never a panic trace.
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("netsight exited with error")
		os.Exit(1)
	}
}

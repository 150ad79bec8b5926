// csvtap - incremental CSV extraction from object storage.
// Discovers delimited files in a bucket, infers schemas, and streams
// SCHEMA/RECORD/STATE messages for downstream loaders.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/csvtap/csvtap/pkg/config"
	"github.com/csvtap/csvtap/pkg/decode"
	"github.com/csvtap/csvtap/pkg/emit"
	"github.com/csvtap/csvtap/pkg/pipeline"
	"github.com/csvtap/csvtap/pkg/state"
	"github.com/csvtap/csvtap/pkg/store"
	"github.com/csvtap/csvtap/pkg/tables"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configPath   string
	localRoot    string
	showProgress bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "csvtap",
	Short: "csvtap - incremental CSV extraction from object storage",
	Long: `csvtap extracts delimited files from an object store as a stream of
SCHEMA, RECORD, and STATE messages on stdout.

Repeated runs are incremental: a persisted bookmark tracks, per table,
the newest modification time already processed, so only new or changed
objects are extracted.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract new data and emit messages on stdout",
	Long: `Extract all new or changed objects for every configured table.

Examples:
  csvtap run --config csvtap.yaml
  csvtap run --config csvtap.yaml --progress 2>run.log | target-loader`,
	RunE: runRun,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show matched objects and inferred schemas without extracting",
	RunE:  runDiscover,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "csvtap.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&localRoot, "local-root", "", "Read from a local directory instead of S3 (development)")

	runCmd.Flags().BoolVar(&showProgress, "progress", false, "Draw a progress bar on stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(validateCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.ObjectStore, error) {
	if localRoot != "" {
		return store.NewLocalStore(localRoot)
	}

	s3cfg := store.DefaultS3Config(cfg.Bucket, cfg.S3.Region)
	s3cfg.Endpoint = cfg.S3.Endpoint
	s3cfg.UsePathStyle = cfg.S3.UsePathStyle
	s3cfg.AccessKeyID = cfg.S3.AccessKeyID
	s3cfg.SecretAccessKey = cfg.S3.SecretAccessKey
	s3cfg.SessionToken = cfg.S3.SessionToken
	return store.NewS3Store(ctx, s3cfg)
}

func buildStateStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case "redis":
		rcfg := state.DefaultRedisConfig(cfg.State.RedisAddress)
		rcfg.Password = cfg.State.RedisPassword
		rcfg.Database = cfg.State.RedisDatabase
		if cfg.State.RedisKey != "" {
			rcfg.Key = cfg.State.RedisKey
		}
		return state.NewRedisStore(rcfg)
	case "s3":
		scfg := state.DefaultS3Config(cfg.State.S3Bucket)
		if cfg.State.S3Key != "" {
			scfg.Key = cfg.State.S3Key
		}
		scfg.Region = cfg.S3.Region
		scfg.Endpoint = cfg.S3.Endpoint
		scfg.UsePathStyle = cfg.S3.UsePathStyle
		scfg.AccessKeyID = cfg.S3.AccessKeyID
		scfg.SecretAccessKey = cfg.S3.SecretAccessKey
		scfg.SessionToken = cfg.S3.SessionToken
		return state.NewS3Store(ctx, scfg)
	default:
		return state.NewFileStore(cfg.State.Path)
	}
}

func buildRunner(ctx context.Context, cfg *config.Config, emitter *emit.Emitter, progress bool) (*pipeline.Runner, error) {
	objStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stateStore, err := buildStateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := state.NewManager(ctx, stateStore, uuid.NewString())
	if err != nil {
		return nil, err
	}

	grouper, err := tables.NewGrouper(cfg.Tables)
	if err != nil {
		return nil, err
	}

	startDate, err := cfg.ParsedStartDate()
	if err != nil {
		return nil, err
	}

	scope, err := decode.ParseThresholdScope(cfg.MalformedRowScope)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Options{
		Store:              objStore,
		Grouper:            grouper,
		State:              mgr,
		Emitter:            emitter,
		Dialect:            cfg.Dialect(),
		Prefix:             cfg.Prefix,
		SampleRows:         cfg.SampleRows,
		MalformedThreshold: cfg.MalformedRowThreshold,
		MalformedScope:     scope,
		Retry: store.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		StartDate: startDate,
		Progress:  progress,
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	emitter := emit.New(os.Stdout)
	runner, err := buildRunner(ctx, cfg, emitter, showProgress)
	if err != nil {
		return err
	}

	if err := runner.Run(ctx); err != nil {
		emitter.Flush()
		return fmt.Errorf("extraction failed: %w", err)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("configuration OK: %d tables, state backend %q\n", len(cfg.Tables), cfg.State.Backend)
	return nil
}

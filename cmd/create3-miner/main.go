package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/screa/create3-salt-miner/internal/config"
	"github.com/screa/create3-salt-miner/internal/crypto"
	logpkg "github.com/screa/create3-salt-miner/internal/logger"
	minerpkg "github.com/screa/create3-salt-miner/pkg/miner"
	"github.com/screa/create3-salt-miner/pkg/types"
)

// Exit codes
const (
	exitFound     = 0
	exitError     = 1
	exitExhausted = 2
	exitCancelled = 130
)

// exitCodeError carries a process exit code through cobra's error return
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			if exitErr.code != exitFound {
				fmt.Fprintln(stderr, exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitFound
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.NewConfig()
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "create3-miner",
		Short: "High-performance CREATE3 salt miner",
		Long: `A performant command line utility for mining CREATE3 salts.
It searches for a salt whose CREATE3 deployment address, for a given creator,
matches a prefix, suffix and/or number of leading zero nibbles.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := mergeConfig(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return runMiner(cmd.Context(), merged, stdout, stderr)
		},
	}

	bindFlags(rootCmd.Flags(), cfg)
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd
}

func bindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.Creator, "creator", "C", cfg.Creator, "Creator (deployer) address (required)")
	fs.StringVarP(&cfg.Target, "target", "t", cfg.Target, "Exact target address (hex)")
	fs.StringVarP(&cfg.Prefix, "prefix", "p", cfg.Prefix, "Address prefix to match (hex)")
	fs.StringVarP(&cfg.Suffix, "suffix", "s", cfg.Suffix, "Address suffix to match (hex)")
	fs.IntVarP(&cfg.LeadingZeros, "leading-zeros", "z", cfg.LeadingZeros, "Minimum number of leading zero nibbles (-1 to disable)")
	fs.BoolVar(&cfg.CaseSensitive, "case-sensitive", cfg.CaseSensitive, "Compare pattern case exactly against the lowercase address")
	fs.Uint64VarP(&cfg.MaxAttempts, "max-attempts", "m", cfg.MaxAttempts, "Maximum number of attempts across all workers (0 = unbounded)")
	fs.BoolVarP(&cfg.Parallel, "parallel", "P", cfg.Parallel, "Search with one worker per CPU core")
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Number of workers in parallel mode (0 = one per CPU core)")
	fs.BoolVar(&cfg.Silent, "silent", cfg.Silent, "Do not report progress")
	fs.StringVar(&cfg.Factory, "factory", cfg.Factory, "Derive for deployments through this CREATE3 factory")
	fs.BoolVar(&cfg.UseDefaultFactory, "use-default-factory", cfg.UseDefaultFactory, "Derive for deployments through the CREATE3 factory at "+crypto.DefaultFactoryAddress)
	fs.StringVar(&cfg.SaltStrategy, "salt-strategy", cfg.SaltStrategy, "Salt generation: counter or random")
	fs.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "Progress reporting interval")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVarP(&cfg.LogFile, "log-file", "l", cfg.LogFile, "Also write logs to this file")
}

// mergeConfig layers explicitly set flags over the file and environment configuration
func mergeConfig(flags *pflag.FlagSet, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bindFlags(overlay, cfg)

	var setErr error
	flags.Visit(func(f *pflag.Flag) {
		if overlay.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	return cfg, nil
}

func runMiner(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	searchCfg, err := cfg.SearchConfig()
	if err != nil {
		return err
	}

	logger, err := logpkg.New(logpkg.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Infow("starting CREATE3 salt miner",
		"creator", searchCfg.Creator.Hex(),
		"target", cfg.GetTargetDescription(),
		"parallel", searchCfg.Parallel,
	)
	if searchCfg.Factory != nil {
		logger.Infow("deploying through factory", "factory", searchCfg.Factory.Hex())
	}

	var opts []minerpkg.Option
	if !searchCfg.Silent {
		opts = append(opts, minerpkg.WithProgress(progressPrinter(stderr)))
	}
	miner, err := minerpkg.NewMiner(searchCfg, logger, opts...)
	if err != nil {
		return err
	}

	outcome, err := miner.Search(ctx)
	if err != nil {
		return err
	}
	if !searchCfg.Silent {
		fmt.Fprintln(stderr)
	}

	switch outcome.Status {
	case types.StatusFound:
		printResult(stdout, searchCfg, outcome.Result)
		return nil
	case types.StatusExhausted:
		return &exitCodeError{code: exitExhausted, err: fmt.Errorf("%w after %d attempts", outcome.Err(), outcome.Attempts)}
	default:
		return &exitCodeError{code: exitCancelled, err: fmt.Errorf("%w after %d attempts", outcome.Err(), outcome.Attempts)}
	}
}

func progressPrinter(w io.Writer) minerpkg.ProgressFunc {
	return func(p types.Progress) {
		fmt.Fprintf(w, "\rAttempts: %d (%.0f/s)", p.Attempts, p.Rate)
	}
}

func printResult(w io.Writer, cfg types.SearchConfig, result *types.SearchResult) {
	var proxy common.Address
	deriver := crypto.NewDeriver(cfg.Creator)
	salt := [32]byte(result.Salt)
	if cfg.Factory != nil {
		deriver = crypto.NewFactoryDeriver(*cfg.Factory, cfg.Creator)
	}
	deriver.ProxyInto(&salt, &proxy)

	fmt.Fprintf(w, "Salt: %s\n", result.Salt.Hex())
	fmt.Fprintf(w, "Address: %s\n", types.AddressHex(result.Address))
	fmt.Fprintf(w, "Checksum: %s\n", result.Address.Hex())
	fmt.Fprintf(w, "Proxy: %s\n", types.AddressHex(proxy))
	fmt.Fprintf(w, "Attempts: %d\n", result.Attempts)
	fmt.Fprintf(w, "Duration: %v\n", result.Elapsed)
	fmt.Fprintf(w, "Rate: %.2f hashes/sec\n", result.Rate())
}

// Package cli builds the nexus command tree. Every command except serve runs
// the orchestrator in-process and prints JSON to stdout.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/nexus/internal/app"
	"github.com/raysh454/nexus/internal/grc"
	"github.com/raysh454/nexus/internal/logging"
	"github.com/raysh454/nexus/internal/server"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string

	cfg    *app.Config
	logger *logging.ZapLogger
}

// NewRootCommand returns the `nexus` command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "nexus",
		Short: "File threat scoring and GRC risk aggregation",
		Long: `nexus scores files with an entropy and keyword driven random forest,
aggregates GRC risk factors, and runs batch scan jobs over HTTP.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("nexus version %s\n", Version))

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a nexus config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug|info|warn|error")

	root.AddCommand(
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newAssessCommand(opts),
		newTrainCommand(opts),
		newQuickScanCommand(opts),
		newLogScanCommand(opts),
		newDatasetCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger, err := logging.New("cli", logging.Options{Level: cfg.LogLevel, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *options) orchestrator() (*app.Orchestrator, error) {
	return app.NewOrchestrator(o.cfg, o.logger, app.Deps{})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.ListenAddr = addr
			}
			srv, err := server.NewServer(server.Config{
				ListenAddr: opts.cfg.ListenAddr,
				AppConfig:  opts.cfg,
				Logger:     opts.logger.With(logging.F("component", "server")),
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpSrv := srv.HTTPServer()
			errCh := make(chan error, 1)
			go func() {
				opts.logger.Info("listening", logging.F("addr", httpSrv.Addr))
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			opts.logger.Info("shutting down")
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides listen_addr)")
	return cmd
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Score files with the threat classifier",
		Long: `Extracts size, entropy and suspicious keyword count from each file and
classifies it. The model is trained from the dataset on first use when no
artifact exists. Use "-" to read standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			ctx := cmd.Context()
			results := make([]*app.FileVerdict, 0, len(args))
			for _, path := range args {
				if path == "-" {
					content, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("reading stdin: %w", err)
					}
					v, err := orch.AnalyzeContent(ctx, content)
					if err != nil {
						return err
					}
					results = append(results, &app.FileVerdict{Path: "-", Verdict: v})
					continue
				}
				fv, err := orch.AnalyzeFile(ctx, path)
				if err != nil {
					return err
				}
				results = append(results, fv)
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
}

func newAssessCommand(opts *options) *cobra.Command {
	var (
		factorFlags []string
		factorsFile string
	)
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Aggregate GRC risk factors into a score and level",
		Example: `  nexus assess --factor access_control=2 --factor patching=1.5
  nexus assess --file factors.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			factors, err := collectFactors(factorFlags, factorsFile)
			if err != nil {
				return err
			}
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			a, err := orch.AssessRisk(factors)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().StringArrayVarP(&factorFlags, "factor", "f", nil, "Risk factor as name=value (repeatable)")
	cmd.Flags().StringVar(&factorsFile, "file", "", "JSON file with an object of factor name to number")
	return cmd
}

// collectFactors merges the JSON file (if any) with --factor flags; flags win.
func collectFactors(flags []string, file string) (grc.RiskFactors, error) {
	factors := grc.RiskFactors{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", grc.ErrInvalidInput, file, err)
		}
		parsed, err := grc.ParseFactors(raw)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			factors[k] = v
		}
	}
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: factor %q is not name=value", grc.ErrInvalidInput, f)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: factor %q: %v", grc.ErrInvalidInput, name, err)
		}
		factors[name] = v
	}
	return factors, nil
}

func newTrainCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the classifier from the dataset and replace the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			info, err := orch.TrainModel(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newQuickScanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quickscan FILE...",
		Short: "Signature and size pre-filter, no model needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			reports := make([]any, 0, len(args))
			for _, path := range args {
				r, err := orch.QuickScanFile(path)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}
			return printJSON(cmd.OutOrStdout(), reports)
		},
	}
}

func newLogScanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logscan FILE",
		Short: "Count suspicious lines in a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			rep, err := orch.ScanLog(r)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func newDatasetCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage the labeled training dataset",
	}

	var source string
	importCmd := &cobra.Command{
		Use:   "import CSV",
		Short: "Load a labeled CSV into the SQLite dataset",
		Long: `Reads file_size, entropy, suspicious_count and label columns and stores
them in the threat_samples table. Requires dataset.driver = sqlite.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := opts.orchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if source == "" {
				source = args[0]
			}
			n, err := orch.ImportDataset(cmd.Context(), f, source)
			if err != nil {
				return err
			}
			st, err := orch.DatasetStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]int{"imported": n}
			if st.Samples != nil {
				out["total"] = *st.Samples
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	importCmd.Flags().StringVar(&source, "source", "", "Provenance label stored with each row (default: the CSV path)")

	cmd.AddCommand(importCmd)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nexus version",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nexus version %s\n", Version)
		},
	}
}

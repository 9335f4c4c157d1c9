package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retaillens/internal/cache"
	"github.com/smallbiznis/retaillens/internal/cleaning"
	"github.com/smallbiznis/retaillens/internal/clock"
	"github.com/smallbiznis/retaillens/internal/config"
	"github.com/smallbiznis/retaillens/internal/forecast"
	"github.com/smallbiznis/retaillens/internal/insights"
	insightsdomain "github.com/smallbiznis/retaillens/internal/insights/domain"
	"github.com/smallbiznis/retaillens/internal/migration"
	"github.com/smallbiznis/retaillens/internal/observability"
	"github.com/smallbiznis/retaillens/internal/pipeline"
	pipelinedomain "github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"github.com/smallbiznis/retaillens/internal/report"
	"github.com/smallbiznis/retaillens/internal/server"
	"github.com/smallbiznis/retaillens/internal/warehouse"
	warehousedomain "github.com/smallbiznis/retaillens/internal/warehouse/domain"
	"github.com/smallbiznis/retaillens/internal/watch"
	"github.com/smallbiznis/retaillens/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startTimeout = 2 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "retaillens",
		Short:         "Retail sales ETL and analytics",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newCleanCmd(),
		newLoadCmd(),
		newRunCmd(),
		newVerifyCmd(),
		newReportCmd(),
		newServeCmd(),
		newWatchCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the warehouse schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), []fx.Option{
				fx.Invoke(migration.Apply),
			}, func(context.Context) error { return nil })
		},
	}
}

type sourceFlags struct {
	input   string
	sheet   string
	cleaned string
}

func (f *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.input, "input", "", "raw order-line file (.xlsx or .csv); defaults to pipeline.inputPath")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "worksheet name for .xlsx input")
	cmd.Flags().StringVar(&f.cleaned, "cleaned", "", "cleaned flat file; defaults to pipeline.cleanedPath")
}

func (f *sourceFlags) request() pipelinedomain.CleanRequest {
	return pipelinedomain.CleanRequest{
		InputPath:   strings.TrimSpace(f.input),
		Sheet:       strings.TrimSpace(f.sheet),
		CleanedPath: strings.TrimSpace(f.cleaned),
	}
}

func newCleanCmd() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Filter the raw source and write the cleaned file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc pipelinedomain.Service
			return runOnce(cmd.Context(), pipelineOptions(&svc), func(ctx context.Context) error {
				rep, err := svc.Clean(ctx, flags.request())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newLoadCmd() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the cleaned file into the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc pipelinedomain.Service
			return runOnce(cmd.Context(), pipelineOptions(&svc), func(ctx context.Context) error {
				rep, err := svc.Load(ctx, flags.request().CleanedPath)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean the raw source, then load the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc pipelinedomain.Service
			return runOnce(cmd.Context(), pipelineOptions(&svc), func(ctx context.Context) error {
				rep, err := svc.Run(ctx, flags.request())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Print row counts of the warehouse tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			var loader warehousedomain.Loader
			opts := []fx.Option{
				warehouse.Module,
				fx.Populate(&loader),
			}
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				counts, err := loader.Verify(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}
}

func newReportCmd() *cobra.Command {
	var (
		start, end, format, output string
		top                        int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export KPIs, top products, top countries and monthly revenue",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			r, err := parseRange(start, end)
			if err != nil {
				return err
			}

			var (
				svc insightsdomain.Service
				clk clock.Clock
			)
			opts := []fx.Option{
				cache.Module,
				clock.Module,
				insights.Module,
				fx.Populate(&svc, &clk),
			}
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				summary, err := report.Build(ctx, svc, r, top, clk.Now())
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return report.Render(cmd.OutOrStdout(), summary, f)
				}
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := report.Render(file, summary, f); err != nil {
					file.Close()
					return err
				}
				return file.Close()
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&format, "format", "json", "json, yaml, csv or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file; stdout when empty")
	cmd.Flags().IntVar(&top, "top", 10, "rows in the top product and country tables")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(registerSnowflake),
				db.Module,
				migration.Module,
				clock.Module,
				cache.Module,
				insights.Module,
				forecast.Module,
				cleaning.Module,
				warehouse.Module,
				pipeline.Module,
				server.Module,
			)
			app.Run()
			return app.Err()
		},
	}
}

func newWatchCmd() *cobra.Command {
	var flags sourceFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the pipeline whenever the raw input changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc    pipelinedomain.Service
				holder *config.PipelineConfigHolder
				log    *zap.Logger
			)
			opts := append(pipelineOptions(&svc), fx.Populate(&holder, &log))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, opts, func(ctx context.Context) error {
				holder.Watch(log)
				cfg := holder.Get()
				req := flags.request()
				if req.InputPath == "" {
					req.InputPath = cfg.InputPath
				}
				w, err := watch.New(svc, req, cfg.WatchDebounce, log)
				if err != nil {
					return err
				}
				return w.Run(ctx)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func pipelineOptions(svc *pipelinedomain.Service) []fx.Option {
	return []fx.Option{
		migration.Module,
		clock.Module,
		cache.Module,
		cleaning.Module,
		warehouse.Module,
		pipeline.Module,
		fx.Populate(svc),
	}
}

// runOnce starts an app with the shared infrastructure plus opts, runs fn and
// stops the app on every path so the store handle is released.
func runOnce(ctx context.Context, opts []fx.Option, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}

func parseRange(start, end string) (insightsdomain.DateRange, error) {
	var r insightsdomain.DateRange
	var err error
	if s := strings.TrimSpace(start); s != "" {
		if r.Start, err = time.Parse(insightsdomain.DateLayout, s); err != nil {
			return r, fmt.Errorf("start: %w", err)
		}
	}
	if e := strings.TrimSpace(end); e != "" {
		if r.End, err = time.Parse(insightsdomain.DateLayout, e); err != nil {
			return r, fmt.Errorf("end: %w", err)
		}
	}
	return r, r.Validate()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

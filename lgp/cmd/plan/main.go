// Package main runs the planning tree on a problem file and prints the result.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"go.viam.com/tamp/config"
	"go.viam.com/tamp/lgp"
	"go.viam.com/tamp/logging"
)

const (
	flagMaxSteps      = "max-steps"
	flagBudget        = "budget"
	flagParallel      = "parallel"
	flagFirstSolution = "first-solution"
	flagReportDir     = "report-dir"
	flagMetricsAddr   = "metrics-addr"
	flagPrintTree     = "print-tree"
	flagDebug         = "debug"
)

func main() {
	app := &cli.App{
		Name:      "plan",
		Usage:     "search a task and motion plan for a problem file",
		ArgsUsage: "<problem.json|problem.yaml>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagMaxSteps,
				Usage: "stop after this many scheduler steps (0 for no limit)",
				Value: 10000,
			},
			&cli.DurationFlag{
				Name:  flagBudget,
				Usage: "stop after this much wall time (0 for no limit)",
			},
			&cli.IntFlag{
				Name:  flagParallel,
				Usage: "number of nodes computed concurrently per step",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  flagFirstSolution,
				Usage: "stop at the first feasible solution",
				Value: true,
			},
			&cli.StringFlag{
				Name:  flagReportDir,
				Usage: "write solution reports below `DIR`, overriding the problem options",
			},
			&cli.StringFlag{
				Name:  flagMetricsAddr,
				Usage: "serve Prometheus metrics on `ADDR`",
			},
			&cli.BoolFlag{
				Name:  flagPrintTree,
				Usage: "print every node of the tree once the search stops",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one problem file")
	}
	logger := logging.NewLogger("lgp")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("lgp")
	}

	problem, err := config.Read(c.Args().First())
	if err != nil {
		return errors.Wrap(err, "cannot read problem")
	}
	if dir := c.String(flagReportDir); dir != "" {
		problem.Options.ReportDir = dir
	}

	var options []lgp.Option
	if addr := c.String(flagMetricsAddr); addr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := lgp.NewMetrics(reg)
		if err != nil {
			return err
		}
		options = append(options, lgp.WithMetrics(metrics))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			if err := server.Close(); err != nil {
				logger.Warnw("cannot close metrics server", "error", err)
			}
		}()
	}

	tree, err := lgp.NewTree(problem, logger, options...)
	if err != nil {
		return err
	}
	scheduler := lgp.NewScheduler(tree, logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	res, err := scheduler.Run(ctx, lgp.RunOptions{
		MaxSteps:            c.Int(flagMaxSteps),
		Budget:              c.Duration(flagBudget),
		StopAtFirstSolution: c.Bool(flagFirstSolution),
		Parallel:            c.Int(flagParallel),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if c.Bool(flagPrintTree) {
		tree.Print(c.App.Writer)
	}
	fmt.Fprintf(c.App.Writer, "stopped after %d steps in %s: %s\n", res.Steps, res.Elapsed, res.Reason)
	if !res.HasSolution {
		color.New(color.FgYellow).Fprintln(c.App.Writer, "no solution found")
		return nil
	}
	color.New(color.FgGreen, color.Bold).Fprintf(c.App.Writer, "best solution %s (#%d) cost %.4f after %d compute calls\n",
		res.Best.Name, res.Best.ID, res.Best.L, tree.ComputeCalls())
	path, err := tree.Path(res.Best.ID)
	if err != nil {
		return err
	}
	for i, q := range path {
		fmt.Fprintf(c.App.Writer, "%3d %v\n", i, q)
	}
	return nil
}

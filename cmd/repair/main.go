// Command repair runs registry reconciliation tasks against the configured
// store and prints each tally as JSON.
//
//	repair -list
//	repair -task legacy-ids
//	repair            # full pipeline
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"airwaves/api/internal/app"
	"airwaves/api/internal/config"
	"airwaves/api/internal/logging"
	"airwaves/api/internal/repair"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("repair", flag.ContinueOnError)
	flags.SetOutput(stderr)
	task := flags.String("task", "", "run a single task instead of the full pipeline")
	list := flags.Bool("list", false, "list tasks and exit")
	pageSize := flags.Int("page-size", 0, "profiles per scan page (default from REPAIR_PAGE_SIZE)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")

	if *list {
		_ = encoder.Encode(repair.Tasks())
		return 0
	}
	if *task != "" {
		if _, ok := repair.Lookup(*task); !ok {
			fmt.Fprintf(stderr, "unknown task %q; use -list\n", *task)
			return 2
		}
	}

	cfg := config.Load()
	if *pageSize > 0 {
		cfg.RepairPage = *pageSize
	}
	logger, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store unavailable", zap.Error(err))
		return 1
	}
	defer closeStore()

	backends := app.OpenRepairBackends(ctx, cfg, logger)
	defer backends.Close()

	runner := repair.NewRunner(dataStore, repair.Config{
		PageSize: cfg.RepairPage,
		Logger:   logger,
		Hooks:    backends.Hooks(logger),
	})

	var tallies []repair.Tally
	if *task != "" {
		tally, runErr := runner.Run(ctx, *task)
		tallies, err = []repair.Tally{tally}, runErr
	} else {
		tallies, err = runner.RunAll(ctx)
	}
	_ = encoder.Encode(tallies)
	if err != nil {
		logger.Error("repair aborted", zap.Error(err))
		return 1
	}
	for _, tally := range tallies {
		if tally.Errors > 0 || tally.Conflicts > 0 {
			return 3
		}
	}
	return 0
}

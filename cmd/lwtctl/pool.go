package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cooniur/lwt/internal/config"
	"github.com/cooniur/lwt/internal/telemetry"
	"github.com/cooniur/lwt/lwt"
)

func newPoolCommand(cfg config.Config) *cobra.Command {
	var jobs int
	var iterations int

	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Submit canned jobs to a worker pool",
		Long:  "Starts a Pool (the Go replacement for kthd_pool.c's manager fiber) and submits a batch of yield-loop jobs to it, reporting how many workers it spun up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.NewLogger(cmd.Flag("log-level").Value.String())
			return runPool(logger, cfg, jobs, iterations)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "number of work items to submit")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 100, "yields performed by each job's fiber")

	return cmd
}

func runPool(log *zap.SugaredLogger, cfg config.Config, jobs, iterations int) error {
	pool := lwt.NewPool(lwt.WithStackSize(cfg.StackSize), lwt.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
		n := arg.(int)
		for i := 0; i < n; i++ {
			self.Yield(nil)
		}
		return n
	}

	for i := 0; i < jobs; i++ {
		item := lwt.WorkItem{Entry: entry, Arg: iterations}
		if err := pool.Submit(ctx, item); err != nil {
			return fmt.Errorf("lwtctl: submit job %d: %w", i, err)
		}
	}

	pool.Close()

	workers := pool.Workers()
	for _, w := range workers {
		w.Close()
		w.Wait()
	}

	log.Infow("scenario: pool", "jobs", jobs, "workers_spawned", len(workers))
	return nil
}

// ============================================================================
// ringpool CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: User-facing command line interface built on Cobra, wiring
// internal/config, internal/pool, and internal/metrics together into a
// small demonstration binary.
//
// Command Structure:
//   ringpool                      # Root command
//   ├── run                       # Start a pool and block until a signal
//   │   └── --config, -c         # Specify config file
//   ├── submit                    # Run a JSON-described batch of tasks to completion
//   │   └── --file, -f           # Specify task-batch JSON file
//   ├── status                    # Show the active configuration
//   ├── --version                 # Display version information
//   └── --help                    # Display help information
//
// run Command:
//   1. Load config file
//   2. Construct internal/pool.Pool per the config's pool knobs
//   3. Start the Prometheus metrics HTTP server (if enabled)
//   4. Listen for SIGINT/SIGTERM
//   5. StopAndWaitAll, letting in-flight and queued work finish
//
// submit Command:
//   Reads a JSON array of task descriptions, submits them all to a
//   short-lived pool (honoring specify_worker_id, priority, and a simulated
//   sleep body), waits for every one to reach a terminal state, and prints a
//   summary. There is no persistence or cross-process submission here - see
//   spec.md's non-goals; this is a self-contained demonstration run, not a
//   client for an already-running server.
//
// status Command:
//   Prints the resolved configuration that a `run` invocation would use.
//
// Grounded on the teacher's internal/cli/cli.go BuildCLI/Config pattern and
// os/signal-based graceful shutdown; the gRPC master/worker split and
// WAL/snapshot status sections are dropped since this spec has no
// distributed mode and no persistence - see DESIGN.md.
//
// ============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringpool/ringpool/internal/config"
	"github.com/ringpool/ringpool/internal/logging"
	"github.com/ringpool/ringpool/internal/metrics"
	"github.com/ringpool/ringpool/internal/platform"
	"github.com/ringpool/ringpool/internal/pool"
	"github.com/ringpool/ringpool/internal/promise"
	"github.com/ringpool/ringpool/pkg/task"
)

var configFile string

// BuildCLI assembles the root Cobra command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ringpool",
		Short: "ringpool: an in-process, lock-free multi-worker task execution engine",
		Long: `ringpool runs a fixed pool of worker goroutines pulling from per-worker
lock-free ring queues, with priority placement, dependency-aware retry, and
optional work stealing between idle and busy workers.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a ringpool worker pool and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
	return cmd
}

func runSystem() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(nil)
	logger.Info("starting ringpool",
		"threads", cfg.Pool.NumThreads, "workStealing", cfg.Pool.EnableWorkStealing)

	var recorder pool.Recorder
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		recorder = collector
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	p := pool.New(pool.Config{
		NumThreads:       cfg.Pool.NumThreads,
		MaxQueueSize:     cfg.Pool.MaxQueueSize,
		MaxIdleLoopCount: cfg.Pool.MaxIdleLoopCount,
		Logger:           logger,
		Platform:         platform.Default(logger),
		Metrics:          recorder,
	})
	p.Start(cfg.Pool.EnableWorkStealing)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal, draining")
	p.StopAndWaitAll()
	logger.Info("ringpool stopped")
	return nil
}

// taskSpec is one entry of the JSON array the submit command reads.
type taskSpec struct {
	Name            string `json:"name"`
	SpecifyWorkerID int    `json:"specify_worker_id"`
	Priority        string `json:"priority"`
	SleepMs         int64  `json:"sleep_ms"`
	DependsOn       []int  `json:"depends_on"`
}

func buildSubmitCommand() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a JSON-described batch of tasks and wait for completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskFile == "" {
				return fmt.Errorf("task file is required (use --file or -f)")
			}
			return submitTasks(taskFile)
		},
	}

	cmd.Flags().StringVarP(&taskFile, "file", "f", "", "JSON file containing task descriptions")
	cmd.MarkFlagRequired("file")

	return cmd
}

func submitTasks(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read task file: %w", err)
	}

	var specs []taskSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("failed to parse task file: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(nil)
	p := pool.New(pool.Config{
		NumThreads:       cfg.Pool.NumThreads,
		MaxQueueSize:     cfg.Pool.MaxQueueSize,
		MaxIdleLoopCount: cfg.Pool.MaxIdleLoopCount,
		Logger:           logger,
		Platform:         platform.Default(logger),
	})
	p.Start(cfg.Pool.EnableWorkStealing)
	defer p.StopAndWaitAll()

	proms := make([]*promise.TaskPromise, len(specs))
	for i, spec := range specs {
		desc := pool.DefaultTaskDescription()
		desc.Name = spec.Name
		desc.Priority = parsePriority(spec.Priority)
		if spec.SpecifyWorkerID >= 0 {
			desc.SpecifyWorkerID = spec.SpecifyWorkerID
		}
		for _, depIdx := range spec.DependsOn {
			if depIdx >= 0 && depIdx < len(proms) && proms[depIdx] != nil {
				desc.Dependencies = append(desc.Dependencies, proms[depIdx])
			}
		}

		sleep := time.Duration(spec.SleepMs) * time.Millisecond
		prom := p.Submit(func(_ *promise.TaskPromise) {
			if sleep > 0 {
				time.Sleep(sleep)
			}
		}, desc)
		proms[i] = prom
		if prom == nil {
			logger.Error("submission rejected", "name", spec.Name, "index", i)
		}
	}

	completed, cancelled, other := 0, 0, 0
	for i, prom := range proms {
		if prom == nil {
			continue
		}
		switch p.Wait(prom) {
		case task.Done:
			completed++
		case task.Cancelled:
			cancelled++
		default:
			other++
		}
		fmt.Printf("task[%d] %q -> %s (worker %d)\n", i, specs[i].Name, prom.State(), prom.LastWorkerID())
	}

	fmt.Printf("\n%d completed, %d cancelled, %d other\n", completed, cancelled, other)
	return nil
}

func parsePriority(s string) task.Priority {
	switch s {
	case "high", "High", "HIGH":
		return task.PriorityHigh
	case "low", "Low", "LOW":
		return task.PriorityLow
	default:
		return task.PriorityNormal
	}
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("ringpool configuration")
	fmt.Printf("  config file:          %s\n", configFile)
	fmt.Printf("  pool.num_threads:     %d\n", cfg.Pool.NumThreads)
	fmt.Printf("  pool.max_queue_size:  %d\n", cfg.Pool.MaxQueueSize)
	fmt.Printf("  pool.idle_loops:      %d\n", cfg.Pool.MaxIdleLoopCount)
	fmt.Printf("  pool.work_stealing:   %t\n", cfg.Pool.EnableWorkStealing)
	fmt.Printf("  pool.task_timeout:    %s\n", cfg.Pool.TaskTimeout)
	fmt.Printf("  metrics.enabled:      %t\n", cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics.port:         %d (http://localhost:%d/metrics)\n", cfg.Metrics.Port, cfg.Metrics.Port)
	}
	return nil
}

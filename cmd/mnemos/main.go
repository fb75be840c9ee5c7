package main

import (
	"context"
	"fmt"
	"mnemos/internal/config"
	"mnemos/internal/decision"
	"mnemos/internal/embedding"
	"mnemos/internal/generator"
	"mnemos/internal/knowledge"
	"mnemos/internal/logging"
	"mnemos/internal/scanner"
	"mnemos/internal/staging"
	"mnemos/internal/threat"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const stateDirName = ".mnemos"

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mnemos",
	Short: "mnemos - self-learning knowledge pipeline",
	Long: `mnemos watches a workspace and gradually turns its files into a
reviewed knowledge base.

A rate-limited scanner reads files inside a sandboxed root, extracts
question/answer candidates (generator-backed with a heuristic fallback),
scores them for dangerous content, and routes each one: auto-merge into
the knowledge store, quarantine for curator review, or hard rejection.
Everything it decides leaves an audit trail under ` + stateDirName + `/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd runs the background learning loop until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background learning loop",
	Long: `Starts the rate-limited scanner and keeps it running until
interrupted. Progress persists in ` + stateDirName + `/progress.json, so stopping
and restarting resumes where the last run left off.`,
	RunE: runLoop,
}

// scanCmd performs scan ticks in the foreground.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Process pending file passes in the foreground",
	Long: `Runs scan ticks synchronously until the workspace has no pending
analysis passes or the tick limit is reached. Useful for seeding the
knowledge base without leaving a daemon running.`,
	RunE: runScan,
}

var scanTicks int

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: current directory)")

	scanCmd.Flags().IntVar(&scanTicks, "ticks", 100, "maximum number of file passes to process")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(stagingCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

// pipeline bundles the wired components behind the CLI commands.
type pipeline struct {
	cfg    *config.Config
	store  *knowledge.Store
	queue  *staging.Queue
	scorer *threat.Scorer
	engine *decision.Engine
}

// openPipeline loads configuration and wires the store, staging queue,
// and decision engine for the current workspace.
func openPipeline() (*pipeline, error) {
	stateDir := filepath.Join(workspace, stateDirName)

	cfg, err := config.Load(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(workspace, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	store, err := knowledge.Open(stateDir, workspace, engine, cfg.Decision.SemanticDupThreshold)
	if err != nil {
		return nil, err
	}

	queue, err := staging.Open(stateDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	scorer := threat.NewScorer(cfg.Decision.SuspicionScore)
	dec, err := decision.New(stateDir, cfg.Decision, scorer, store, queue)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &pipeline{cfg: cfg, store: store, queue: queue, scorer: scorer, engine: dec}, nil
}

func (p *pipeline) close() {
	if err := p.store.Close(); err != nil {
		logger.Warn("failed to close knowledge store", zap.Error(err))
	}
}

// newScanner wires a scanner on top of an open pipeline.
func (p *pipeline) newScanner() (*scanner.Scanner, error) {
	gen, err := generator.New(p.cfg.Generator)
	if err != nil {
		logger.Warn("generator unavailable, extraction degrades to heuristics", zap.Error(err))
		gen = nil
	}

	stateDir := filepath.Join(workspace, stateDirName)
	return scanner.New(workspace, stateDir, p.cfg.Scanner, p.cfg.GeneratorTimeout(), gen, p.engine)
}

func runLoop(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	s, err := p.newScanner()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("mnemos learning from %s (%.1f files/min, deep=%v). Ctrl-C to stop.\n",
		workspace, p.cfg.Scanner.RatePerMinute, p.cfg.Scanner.DeepMode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nstopping...")
	return s.Stop()
}

func runScan(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	s, err := p.newScanner()
	if err != nil {
		return err
	}

	processed, err := s.RunTicks(cmd.Context(), scanTicks)
	if err != nil {
		return err
	}

	fmt.Printf("processed %d file passes\n", processed)
	fmt.Printf("knowledge: %d records, staging: %d pending\n",
		p.store.Len(), len(p.queue.ListPending()))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

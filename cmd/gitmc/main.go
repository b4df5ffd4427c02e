package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naughtychas/gitmc-core/internal/compress"
	"github.com/naughtychas/gitmc-core/internal/engconfig"
	"github.com/naughtychas/gitmc-core/internal/gitrepo"
	"github.com/naughtychas/gitmc-core/internal/operations"
	"github.com/naughtychas/gitmc-core/internal/snbt"
	"github.com/naughtychas/gitmc-core/internal/translate"
	"github.com/naughtychas/gitmc-core/pkg/logger"
)

func main() {
	var configPath = flag.String("config", ".", "Path to the directory containing config.yaml")
	flag.Parse()

	log := logger.New()

	cfg, err := engconfig.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	if cfg.Logging.Enabled {
		log = logger.NewWithConfig(&logger.Config{
			Enabled:    cfg.Logging.Enabled,
			FilePath:   cfg.Logging.FilePath,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
	}

	history, err := operations.OpenHistoryStore(cfg.Operations.HistoryDBPath)
	if err != nil {
		log.Fatal("Failed to open operation history: %v", err)
	}
	defer history.Close()

	mgr := operations.NewManager(time.Duration(cfg.Operations.PruneHorizonHours)*time.Hour, history)

	pruner, err := operations.NewPruner(mgr, cfg.Operations.PruneSchedule)
	if err != nil {
		log.Fatal("Invalid prune schedule %q: %v", cfg.Operations.PruneSchedule, err)
	}
	pruner.Start()
	defer pruner.Stop()

	// No version-control porcelain is wired in here: GitMC-Core is a
	// library, and the real Repository (talking to an actual git
	// checkout) is supplied by whatever application embeds it. This CLI
	// exists to drive the engine stand-alone, so it falls back to an
	// in-memory repository good enough to extract, commit, and rebuild
	// within a single process run.
	repo := gitrepo.NewMemoryRepository()
	engine := buildEngine(cfg, repo)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "extract":
		if len(args) < 2 {
			log.Fatal("usage: gitmc extract <save-dir>")
		}
		runExtract(ctx, log, mgr, engine, args[1])
	case "rebuild":
		if len(args) < 3 {
			log.Fatal("usage: gitmc rebuild <save-dir> <commit>")
		}
		runRebuild(ctx, log, mgr, engine, args[1], args[2])
	case "commit":
		if len(args) < 3 {
			log.Fatal("usage: gitmc commit <save-dir> <message>")
		}
		runCommit(ctx, log, repo, engine, args[1], args[2])
	case "status":
		runStatus(log, mgr)
	default:
		printUsage()
		os.Exit(2)
	}
}

func buildEngine(cfg *engconfig.Config, repo gitrepo.Repository) *translate.Engine {
	engine := translate.NewEngine(repo, cfg.Engine.TranslatorID)
	engine.MirrorDirName = cfg.Translation.MirrorDirName
	engine.Compression = compress.Kind(cfg.Translation.DefaultCompression)
	engine.AllowExternalSpill = cfg.Translation.AllowExternalSpill
	engine.WorkerLimit = cfg.Engine.WorkerCount
	if cfg.Translation.EnableLZ4 {
		compress.EnableLZ4()
	}

	opts := snbt.DefaultOptions()
	if cfg.Translation.SerializerMode == "expanded" {
		opts.Mode = snbt.Expanded
	}
	engine.SerializerOptions = opts

	return engine
}

// runOperation submits work to the manager and blocks until it reaches
// a terminal state, printing progress as it streams in.
func runOperation(ctx context.Context, log *logger.Logger, mgr *operations.Manager, kind, savePath string, work operations.Work) operations.Snapshot {
	updates, unsubscribe := mgr.Subscribe(32)
	defer unsubscribe()

	id, _ := mgr.Run(ctx, kind, savePath, work)

	for snap := range updates {
		if snap.ID != id {
			continue
		}
		log.Info("[%s] %s step %d/%d: %s", snap.ID, snap.Status, snap.CurrentStep, snap.TotalSteps, snap.Message)
		if snap.Status.Terminal() {
			return snap
		}
	}
	final, _ := mgr.Get(id)
	return final
}

func runExtract(ctx context.Context, log *logger.Logger, mgr *operations.Manager, engine *translate.Engine, saveDir string) {
	snap := runOperation(ctx, log, mgr, "extract", saveDir, func(h *operations.Handle) error {
		report, err := engine.Extract(h.Context(), saveDir, func(current, total int, message string) {
			h.Progress(current, total, message)
		})
		if err != nil {
			return err
		}
		log.Info("extract: %d written, %d skipped, %d deleted", len(report.Written), len(report.Skipped), len(report.Deleted))
		return nil
	})
	if snap.Status == operations.StatusFailed {
		log.Fatal("extract failed: %v", snap.Err)
	}
}

func runRebuild(ctx context.Context, log *logger.Logger, mgr *operations.Manager, engine *translate.Engine, saveDir, commit string) {
	snap := runOperation(ctx, log, mgr, "rebuild", saveDir, func(h *operations.Handle) error {
		report, err := engine.Rebuild(h.Context(), saveDir, commit, func(current, total int, message string) {
			h.Progress(current, total, message)
		})
		if err != nil {
			return err
		}
		log.Info("rebuild: %d files written", len(report.Written))
		return nil
	})
	if snap.Status == operations.StatusFailed {
		log.Fatal("rebuild failed: %v", snap.Err)
	}
}

func runCommit(ctx context.Context, log *logger.Logger, repo *gitrepo.MemoryRepository, engine *translate.Engine, saveDir, message string) {
	hash, err := repo.Commit(ctx, message)
	if err != nil {
		log.Fatal("commit failed: %v", err)
	}
	if err := engine.FinalizeCommit(ctx, saveDir, hash); err != nil {
		log.Fatal("finalizing commit %s failed: %v", hash, err)
	}
	log.Info("committed %s", hash)
}

func runStatus(log *logger.Logger, mgr *operations.Manager) {
	pruned := mgr.Prune(time.Now())
	log.Info("operation manager running, pruned %d finished operation(s)", pruned)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: gitmc [-config dir] <extract|rebuild|commit|status> [args...]")
	fmt.Fprintln(os.Stderr, "  extract <save-dir>")
	fmt.Fprintln(os.Stderr, "  rebuild <save-dir> <commit>")
	fmt.Fprintln(os.Stderr, "  commit <save-dir> <message>")
	fmt.Fprintln(os.Stderr, "  status")
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"assetmig-go/internal/config"
	"assetmig-go/internal/shutdown"
	"assetmig-go/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func WatchCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "watch [job...]",
		Short: "Apply each job's cache file whenever it is rewritten",
		Long: "watch keeps the rewrite tree open and applies a job's cache file each time an\n" +
			"extraction (or a hand edit) rewrites it. Config changes are picked up live.",
		RunE: func(command *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(command, func(a *app) error {
				return runWatch(ctx, a, args, dbFlag(command, ""), command.OutOrStdout())
			})
		},
	}
	command.Flags().String("db", "", "Tree database to write (default: rewrite_db)")
	return command
}

// cacheWatcher debounces cache file events and applies the matching job
type cacheWatcher struct {
	ctx    context.Context
	app    *app
	loader *config.Loader
	tree   *storage.Manager
	only   map[string]bool
	out    io.Writer
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	applyMu sync.Mutex
	running sync.WaitGroup
}

func runWatch(ctx context.Context, a *app, names []string, db string, out io.Writer) error {
	if _, err := a.jobsFromArgs(names); err != nil {
		return err
	}
	if db == "" {
		db = a.cfg.RewriteDB
	}
	tree, err := a.openWritableTree(db)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader(a.configPath, a.logger.Named("config"))
	if err != nil {
		return err
	}
	a.shutdown.RegisterCloser("config watcher", shutdown.PhaseWatchers, loader.Stop)
	if _, err := loader.Load(); err != nil {
		return err
	}

	w := &cacheWatcher{
		ctx:     ctx,
		app:     a,
		loader:  loader,
		tree:    tree,
		only:    make(map[string]bool),
		out:     out,
		logger:  a.logger.Named("watch"),
		pending: make(map[string]*time.Timer),
	}
	for _, n := range names {
		w.only[n] = true
	}
	a.shutdown.RegisterFunc("pending applies", shutdown.PhaseJobs, w.drain)

	if err := loader.WatchCaches(a.cfg.CacheDir, w.schedule); err != nil {
		return err
	}
	if err := loader.StartWatching(w.reload); err != nil {
		return err
	}

	fmt.Fprintf(out, "watching %s (tree %s); press Ctrl+C to stop\n", a.cfg.CacheDir, db)
	<-ctx.Done()
	return nil
}

// reload accepts a changed config unless it moved the cache directory,
// which an open watch cannot follow
func (w *cacheWatcher) reload(cfg *config.Config) error {
	if cfg.CacheDir != w.app.cfg.CacheDir {
		return fmt.Errorf("cache_dir changed from %s to %s; restart watch", w.app.cfg.CacheDir, cfg.CacheDir)
	}
	w.logger.Info("Configuration reloaded", zap.Strings("jobs", cfg.JobNames()))
	return nil
}

func (w *cacheWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(config.WatchSettleDelay)
		return
	}

	w.running.Add(1)
	var t *time.Timer
	t = time.AfterFunc(config.WatchSettleDelay, func() {
		defer w.running.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.apply(path)
	})
	w.pending[path] = t
}

func (w *cacheWatcher) apply(path string) {
	if w.ctx.Err() != nil {
		return
	}
	cfg := w.loader.GetConfig()
	job := cfg.JobForCache(path)
	if job == nil || (len(w.only) > 0 && !w.only[job.Name]) {
		w.logger.Debug("Ignoring cache file", zap.String("path", path))
		return
	}

	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	run := *w.app
	run.cfg = cfg
	if _, err := runApply(w.ctx, &run, w.tree, job, w.out); err != nil {
		w.logger.Error("Apply failed", zap.String("job", job.Name), zap.Error(err))
	}
}

// drain cancels debounced events and waits for running applies
func (w *cacheWatcher) drain(ctx context.Context) error {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.running.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

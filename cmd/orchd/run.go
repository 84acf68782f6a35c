package orchd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala-dev/orchd/internal/orchd/config"
	"github.com/othala-dev/orchd/internal/orchd/eventlog"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
	"github.com/othala-dev/orchd/internal/orchd/service"
	"github.com/othala-dev/orchd/internal/orchd/store"
)

func runDaemon(_ *cobra.Command, _ []string) error {
	debug := os.Getenv("ORCHD_DEBUG") != "" || debugFlag
	if debug {
		logPath := os.Getenv("ORCHD_LOG")
		if logPath == "" {
			logPath = "orchd-debug.log"
		}
		cleanup, err := orchlog.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
	}

	interval, err := time.ParseDuration(tickInterval)
	if err != nil {
		return fmt.Errorf("parsing --tick-interval: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return fmt.Errorf("creating sqlite directory: %w", err)
	}
	if err := os.MkdirAll(eventLogRoot, 0o755); err != nil {
		return fmt.Errorf("creating event log directory: %w", err)
	}

	org, err := config.LoadOrgConfig(orgConfigPath)
	if err != nil {
		return fmt.Errorf("loading org config at %s: %w", orgConfigPath, err)
	}
	if issues := config.ValidateOrgConfig(org); config.HasErrors(issues) {
		return fmt.Errorf("org config validation failed (%s)", strings.Join(config.ErrorMessages(issues), "; "))
	}

	loadedRepos, err := config.LoadRepoConfigs(reposConfigDir)
	if err != nil {
		return fmt.Errorf("loading repo configs from %s: %w", reposConfigDir, err)
	}
	repoCfgs := make([]config.RepoConfig, 0, len(loadedRepos))
	var repoErrors []string
	for _, loaded := range loadedRepos {
		for _, issue := range config.ValidateRepoConfig(loaded.Config) {
			if issue.Level == config.LevelError {
				repoErrors = append(repoErrors, fmt.Sprintf("%s: %s", loaded.Path, issue.Message))
			}
		}
		repoCfgs = append(repoCfgs, loaded.Config)
	}
	if len(repoErrors) > 0 {
		return fmt.Errorf("repo config validation failed (%s)", strings.Join(repoErrors, "; "))
	}

	st, err := store.Open(sqlitePath)
	if err != nil {
		return fmt.Errorf("opening store at %s: %w", sqlitePath, err)
	}
	defer st.Close()

	elog := eventlog.New(eventLogRoot)

	var svc *service.Service
	if len(repoCfgs) > 0 {
		svc, err = service.New(service.Config{
			Store:    st,
			EventLog: elog,
			Org:      org,
			Repos:    repoCfgs,
		})
		if err != nil {
			return fmt.Errorf("constructing service: %w", err)
		}
		defer svc.Close()
	}

	taskCount := 0
	if svc != nil {
		tasks, err := svc.ListTasks()
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		taskCount = len(tasks)
	}
	fmt.Printf("orchd bootstrapped sqlite=%s event_log_root=%s tasks=%d\n", sqlitePath, eventLogRoot, taskCount)

	if len(repoCfgs) == 0 {
		fmt.Printf("orchd loaded 0 repo configs from %s\n", reposConfigDir)
	} else {
		ids := make([]string, len(repoCfgs))
		for i, cfg := range repoCfgs {
			ids[i] = string(cfg.RepoID)
		}
		fmt.Printf("orchd loaded %d repo configs from %s [%s]\n", len(repoCfgs), reposConfigDir, strings.Join(ids, ", "))
	}

	if once {
		fmt.Println("orchd exiting after bootstrap (--once)")
		if svc != nil {
			_, err := svc.Tick(context.Background())
			return err
		}
		return nil
	}

	if svc == nil {
		return fmt.Errorf("cannot run continuously with zero configured repos; pass --once or configure a repo in %s", reposConfigDir)
	}

	return runUntilInterrupted(svc, interval)
}

func runUntilInterrupted(svc *service.Service, interval time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx, interval)
	}()

	reloadCh, stopWatch := startRepoConfigWatcher()
	if stopWatch != nil {
		defer stopWatch()
	}

	fmt.Println("orchd running; press Ctrl+C to stop")

	interrupted := false
	for !interrupted {
		select {
		case sig := <-sigCh:
			fmt.Printf("received %s, shutting down...\n", sig)
			cancel()
			interrupted = true
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("service run loop failed: %w", err)
			}
			return nil
		case <-reloadCh:
			reloadRepoConfigs(svc)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-errCh:
	case <-shutdownCtx.Done():
		fmt.Println("orchd shutdown timed out waiting for the run loop to stop")
	}

	fmt.Println("orchd stopped")
	return nil
}

// startRepoConfigWatcher watches the repo config directory for changes so
// newly-added repo files are picked up without a restart. A failure to
// start the watcher (e.g. the directory doesn't exist yet) is logged and
// treated as hot-reload simply being unavailable, not a fatal error.
func startRepoConfigWatcher() (<-chan struct{}, func()) {
	watcher, err := config.NewWatcher(config.DefaultWatcherConfig(reposConfigDir))
	if err != nil {
		orchlog.Warn(orchlog.CatConfig, "repo config watcher unavailable", "error", err.Error())
		return nil, nil
	}
	reloadCh, err := watcher.Start()
	if err != nil {
		orchlog.Warn(orchlog.CatConfig, "repo config watcher unavailable", "error", err.Error())
		return nil, nil
	}
	return reloadCh, func() { _ = watcher.Stop() }
}

// reloadRepoConfigs re-scans the repo config directory and admits any
// repo the running service doesn't already know about. Validation
// failures are logged and repos that already exist are skipped, neither
// is fatal: one bad
// file in the directory shouldn't take down an otherwise-healthy daemon.
func reloadRepoConfigs(svc *service.Service) {
	loaded, err := config.LoadRepoConfigs(reposConfigDir)
	if err != nil {
		orchlog.Warn(orchlog.CatConfig, "repo config reload failed", "error", err.Error())
		return
	}

	cfgs := make([]config.RepoConfig, 0, len(loaded))
	for _, l := range loaded {
		issues := config.ValidateRepoConfig(l.Config)
		if config.HasErrors(issues) {
			orchlog.Warn(orchlog.CatConfig, "skipping invalid repo config on reload", "path", l.Path, "errors", strings.Join(config.ErrorMessages(issues), "; "))
			continue
		}
		cfgs = append(cfgs, l.Config)
	}

	if err := svc.SyncRepos(cfgs); err != nil {
		orchlog.Warn(orchlog.CatConfig, "repo config reload failed", "error", err.Error())
	}
}

package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"skiff/pkg/config"
	"skiff/pkg/logger"
	"skiff/pkg/logstore"
	"skiff/pkg/state"
)

// The sweeper reclaims space held by log rows and trigram postings older
// than the query window. Queries already hide them; this deletes them.

var storedCfg *config.Config

// SetConfig stores the config so admin triggers and tests can invoke
// retention runs on demand.
func SetConfig(cfg *config.Config) {
	storedCfg = cfg
}

// RunImmediate triggers a single retention run using the stored config.
func RunImmediate() error {
	if storedCfg == nil {
		return fmt.Errorf("no config registered for retention run")
	}
	if state.PathsVar.Retention == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), state.PathsVar.Retention)
}

// Start starts the retention scheduler if enabled. The config is stored
// either way so the ops trigger can run a sweep on a deployment that has
// the cron schedule off. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config) (context.CancelFunc, error) {
	SetConfig(cfg)
	if !cfg.Retention.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	retentionPath := state.PathsVar.Retention
	if err := os.MkdirAll(retentionPath, 0o700); err != nil {
		logger.Error("retention_path_create_failed", "path", retentionPath, "error", err)
		return nil, err
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Retention.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Retention.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "path", retentionPath)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, retentionPath, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with gronx
// and sleeps until then.
func runScheduler(ctx context.Context, retentionPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			if rerr := runOnce(ctx, retentionPath); rerr != nil {
				logger.Error("retention_run_error", "error", rerr)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			if rerr := runOnce(ctx, retentionPath); rerr != nil {
				logger.Error("retention_run_error", "error", rerr)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce prunes aged-out log state and records the run in a marker file
// so operators can see when the sweeper last completed.
func runOnce(ctx context.Context, retentionPath string) error {
	start := time.Now()
	cutoff := start.Add(-logstore.Window)
	removed, err := logstore.Prune(cutoff)
	if err != nil {
		return fmt.Errorf("prune logs: %w", err)
	}
	logger.Info("retention_run_complete", "removed", removed, "cutoff", cutoff.UTC().Format(time.RFC3339), "took", time.Since(start).String())

	marker := filepath.Join(retentionPath, "last_run")
	_ = os.WriteFile(marker, []byte(start.UTC().Format(time.RFC3339)+"\n"), 0o600)
	return nil
}

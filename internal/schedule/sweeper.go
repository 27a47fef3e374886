package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"sortly/internal/config"
	"sortly/internal/metrics"
)

// SweepUploads removes regular files in dir last modified before now-maxAge.
// Uploads are normally deleted right after extraction; this catches files
// left behind by a crash. It returns how many files were removed.
func SweepUploads(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading upload dir %s: %w", dir, err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("upload sweep remove %s failed: %v", path, err)
			continue
		}
		removed++
		metrics.UploadsSwept.Inc()
	}
	return removed, nil
}

func StartUploadSweeper(ctx context.Context, cfg config.Config) {
	if !cfg.UploadSweepEnabled() {
		log.Println("Upload sweeper disabled (upload_sweep_schedule is off)")
		return
	}
	sched, err := config.ParseSchedule(cfg.UploadSweepSchedule)
	if err != nil {
		log.Printf("Invalid upload_sweep_schedule '%s': %v, sweeper disabled", cfg.UploadSweepSchedule, err)
		return
	}
	maxAge := cfg.UploadMaxAge()
	log.Printf("Upload sweeper scheduled (cron: %s) dir=%s max_age=%s", cfg.UploadSweepSchedule, cfg.UploadDir, maxAge)

	runEvery(ctx, "upload sweep", sched, cfg.Location, func(ctx context.Context) {
		removed, err := SweepUploads(cfg.UploadDir, maxAge, time.Now())
		if err != nil {
			log.Printf("Upload sweep error: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("Upload sweep removed=%d", removed)
		}
	})
}

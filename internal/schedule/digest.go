package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"sortly/internal/config"
)

const digestWindow = 24 * time.Hour

type categoryCounter interface {
	CountByCategorySince(ctx context.Context, since time.Time) (map[string]int, error)
}

type digestPoster interface {
	PostDigest(ctx context.Context, counts map[string]int, since, until time.Time) error
}

// RunDigest posts the per-category counts of the last 24 hours.
func RunDigest(ctx context.Context, counter categoryCounter, poster digestPoster, now time.Time) error {
	since := now.Add(-digestWindow)
	counts, err := counter.CountByCategorySince(ctx, since)
	if err != nil {
		return fmt.Errorf("counting categories since %s: %w", since.Format(time.RFC3339), err)
	}
	if err := poster.PostDigest(ctx, counts, since, now); err != nil {
		return err
	}
	log.Printf("digest posted since=%s categories=%d", since.Format(time.RFC3339), len(counts))
	return nil
}

// StartDigestScheduler posts a daily summary to Slack on cfg.DigestSchedule.
// The schedule is a standard 5-field cron expression, e.g. "0 18 * * 1-5".
func StartDigestScheduler(ctx context.Context, cfg config.Config, counter categoryCounter, poster digestPoster) {
	if !cfg.DigestEnabled() {
		log.Println("Digest disabled (digest_schedule not set)")
		return
	}
	if !cfg.SlackConfigured() {
		log.Println("Digest disabled: Slack is not configured")
		return
	}
	sched, err := config.ParseSchedule(cfg.DigestSchedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v, digest disabled", cfg.DigestSchedule, err)
		return
	}
	log.Printf("Digest scheduled (cron: %s) channel=%s", cfg.DigestSchedule, cfg.SlackChannelID)

	runEvery(ctx, "digest", sched, cfg.Location, func(ctx context.Context) {
		if err := RunDigest(ctx, counter, poster, time.Now().In(locationOrLocal(cfg.Location))); err != nil {
			log.Printf("Digest error: %v", err)
		}
	})
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

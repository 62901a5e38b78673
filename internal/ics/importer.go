package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Upserter is the part of store.Store the importer writes through.
type Upserter interface {
	UpsertEvent(ctx context.Context, ev model.Event) error
}

// Importer pulls every configured feed into the store. Runs are serialized
// so a slow refresh never overlaps the next cron tick.
type Importer struct {
	fetcher  *Fetcher
	store    Upserter
	sources  []Source
	location *time.Location

	mu sync.Mutex
}

// ImportStats summarizes one Run.
type ImportStats struct {
	Sources  int
	Events   int
	Failures int
}

func NewImporter(f *Fetcher, s Upserter, sources []Source, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{
		fetcher:  f,
		store:    s,
		sources:  sources,
		location: loc,
	}
}

// Run fetches, parses and upserts all sources. A failing source or event does
// not stop the others; all failures are returned joined.
func (im *Importer) Run(ctx context.Context) (ImportStats, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var stats ImportStats
	if len(im.sources) == 0 {
		return stats, nil
	}

	results, fetchErr := im.fetcher.FetchAll(ctx, im.sources)
	errs := []error{fetchErr}
	stats.Failures = len(im.sources) - len(results)

	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body, im.location)
		if err != nil {
			stats.Failures++
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			continue
		}
		stats.Sources++
		for _, ev := range events {
			if err := im.store.UpsertEvent(ctx, ev); err != nil {
				stats.Failures++
				appLog.Error("ics import: upsert failed", err, "id", ev.ID)
				errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
				continue
			}
			stats.Events++
		}
	}

	return stats, errors.Join(errs...)
}

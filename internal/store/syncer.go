package store

import (
	"context"
	"log"
	"time"

	"tada-core/internal/pipeline"
)

// Syncer periodically reloads all pipelines into the routing index.
// API handlers already update the index on every mutation; the periodic
// reload covers rows changed out of band (another instance, manual SQL)
// and recovers the index after reconnects.
type Syncer struct {
	store    *Store
	index    *pipeline.Index
	interval time.Duration
}

func NewSyncer(store *Store, index *pipeline.Index, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{store: store, index: index, interval: interval}
}

func (s *Syncer) Run(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		log.Printf("[store] initial pipeline sync failed: %v", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.Printf("[store] pipeline sync failed: %v", err)
			}
		}
	}
}

// SyncOnce replaces the index contents with every stored pipeline,
// paused and errored ones included; PipelinesFor filters on status at
// routing time. Rows that fail validation are skipped and logged, not
// fatal.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	pipelines, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, err := range s.index.ReplaceAll(pipelines) {
		log.Printf("[store] skipping invalid pipeline: %v", err)
	}
	return nil
}

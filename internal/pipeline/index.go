package pipeline

import (
	"fmt"
	"sync"

	"tada-core/internal/models"
	"tada-core/internal/programs"
)

// Index maps program ids to the pipelines registered for them. Reads
// dominate (one lookup per decoded event); writes arrive from the
// control plane. Readers always observe either the whole new version of
// a pipeline or the whole old one.
type Index struct {
	mu        sync.RWMutex
	byID      map[string]*models.Pipeline
	byProgram map[string]map[string]*models.Pipeline
}

func NewIndex() *Index {
	return &Index{
		byID:      make(map[string]*models.Pipeline),
		byProgram: make(map[string]map[string]*models.Pipeline),
	}
}

// Validate rejects pipelines that could never process anything: empty
// programs, unknown program ids, or no enabled destination.
func Validate(p *models.Pipeline) error {
	if p.ID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	if len(p.Programs) == 0 {
		return fmt.Errorf("pipeline %s: programs must be non-empty", p.ID)
	}
	for _, id := range p.Programs {
		if _, ok := programs.ByID(id); !ok {
			return fmt.Errorf("pipeline %s: unknown program %q", p.ID, id)
		}
	}
	if p.Destinations.EnabledCount() == 0 {
		return fmt.Errorf("pipeline %s: at least one destination must be enabled", p.ID)
	}
	return nil
}

// Upsert stores the pipeline and indexes it under every program it
// names. A previous version is fully unindexed first, so re-upserting
// never leaves stale entries.
func (i *Index) Upsert(p *models.Pipeline) error {
	if err := Validate(p); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if prev, ok := i.byID[p.ID]; ok {
		i.unindexLocked(prev)
	}
	i.byID[p.ID] = p
	for _, prog := range p.Programs {
		bucket := i.byProgram[prog]
		if bucket == nil {
			bucket = make(map[string]*models.Pipeline)
			i.byProgram[prog] = bucket
		}
		bucket[p.ID] = p
	}
	return nil
}

// Remove drops the pipeline and all its reverse mappings. Unknown ids
// are a no-op.
func (i *Index) Remove(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.byID[id]; ok {
		i.unindexLocked(prev)
		delete(i.byID, id)
	}
}

func (i *Index) unindexLocked(p *models.Pipeline) {
	for _, prog := range p.Programs {
		bucket := i.byProgram[prog]
		delete(bucket, p.ID)
		if len(bucket) == 0 {
			delete(i.byProgram, prog)
		}
	}
}

// PipelinesFor returns all active pipelines registered for the program.
// Order is unspecified but the returned slice is the caller's to keep.
func (i *Index) PipelinesFor(programID string) []*models.Pipeline {
	i.mu.RLock()
	defer i.mu.RUnlock()
	bucket := i.byProgram[programID]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]*models.Pipeline, 0, len(bucket))
	for _, p := range bucket {
		if p.Status == models.StatusActive {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the pipeline by id.
func (i *Index) Get(id string) (*models.Pipeline, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.byID[id]
	return p, ok
}

// List returns every stored pipeline, regardless of status.
func (i *Index) List() []*models.Pipeline {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*models.Pipeline, 0, len(i.byID))
	for _, p := range i.byID {
		out = append(out, p)
	}
	return out
}

// ReplaceAll swaps the full pipeline set in one atomic step. Used by the
// store syncer; invalid pipelines are skipped and reported.
func (i *Index) ReplaceAll(pipelines []*models.Pipeline) (skipped []error) {
	byID := make(map[string]*models.Pipeline, len(pipelines))
	byProgram := make(map[string]map[string]*models.Pipeline)
	for _, p := range pipelines {
		if err := Validate(p); err != nil {
			skipped = append(skipped, err)
			continue
		}
		byID[p.ID] = p
		for _, prog := range p.Programs {
			if byProgram[prog] == nil {
				byProgram[prog] = make(map[string]*models.Pipeline)
			}
			byProgram[prog][p.ID] = p
		}
	}
	i.mu.Lock()
	i.byID = byID
	i.byProgram = byProgram
	i.mu.Unlock()
	return skipped
}

// Package memory provides the default in-process incident repository. It
// keeps insertion order, which fixes the snapshot ordering for the query
// engine.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/statuspulse/incidentd/internal/repository"
	"github.com/statuspulse/incidentd/pkg/incident"
)

// Repository stores incidents in process memory behind a single mutex.
type Repository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]incident.Incident
	now   func() time.Time
}

var _ repository.IncidentRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		byID: make(map[string]incident.Incident),
		now:  time.Now,
	}
}

// Insert adds a new incident, rejecting duplicate ids.
func (r *Repository) Insert(ctx context.Context, inc incident.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inc.ID]; ok {
		return repository.ErrDuplicateID
	}
	r.byID[inc.ID] = inc.Clone()
	r.order = append(r.order, inc.ID)
	return nil
}

// GetByID returns a copy of the incident with the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := inc.Clone()
	return &out, nil
}

// Update merges the patch into the stored incident and refreshes UpdatedAt.
func (r *Repository) Update(ctx context.Context, id string, patch incident.Patch) (*incident.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	inc.Apply(patch, r.now().UTC())
	r.byID[id] = inc
	out := inc.Clone()
	return &out, nil
}

// Delete removes the incident with the given id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	for idx, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:idx], r.order[idx+1:]...)
			break
		}
	}
	return nil
}

// Snapshot copies the whole collection in insertion order. The copy is
// detached from the store, so later mutations do not leak into it.
func (r *Repository) Snapshot(ctx context.Context) ([]incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]incident.Incident, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out, nil
}

// Len reports the number of stored incidents.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Package incidents is the single write path over the incident store. Every
// mutation goes through here, so broadcast-after-commit holds no matter which
// surface (REST, simulator, seeding) triggered it.
package incidents

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/statuspulse/incidentd/internal/query"
	"github.com/statuspulse/incidentd/internal/repository"
	"github.com/statuspulse/incidentd/pkg/incident"
)

// Broadcaster publishes change events to subscribed listeners.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Service coordinates the repository, the query engine and the broadcaster.
type Service struct {
	repo   repository.IncidentRepository
	hub    Broadcaster
	gen    *Generator
	logger *slog.Logger
}

// New constructs an incident service.
func New(repo repository.IncidentRepository, hub Broadcaster, gen *Generator, logger *slog.Logger) Service {
	if gen == nil {
		gen = NewGenerator(0)
	}
	return Service{repo: repo, hub: hub, gen: gen, logger: logger}
}

// Query evaluates a filtered, paginated read over a store snapshot.
func (s Service) Query(ctx context.Context, f incident.Filter, p incident.PageRequest) (incident.QueryResult, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return incident.QueryResult{}, err
	}
	return query.Run(snapshot, f, p), nil
}

// Get returns a single incident by id.
func (s Service) Get(ctx context.Context, id string) (*incident.Incident, error) {
	return s.repo.GetByID(ctx, id)
}

// Create merges the draft onto a generated default incident, inserts it and
// broadcasts incident.created after the insert commits.
func (s Service) Create(ctx context.Context, draft incident.Draft) (*incident.Incident, error) {
	inc := s.gen.Incident(time.Now().UTC())
	applyDraft(&inc, draft)
	if err := s.repo.Insert(ctx, inc); err != nil {
		return nil, err
	}
	s.broadcast(incident.EventIncidentCreated, inc)
	return &inc, nil
}

// Update merges a partial patch and broadcasts incident.updated.
func (s Service) Update(ctx context.Context, id string, patch incident.Patch) (*incident.Incident, error) {
	inc, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.broadcast(incident.EventIncidentUpdated, *inc)
	return inc, nil
}

// Resolve forces the incident into resolved state. ResolvedAt is stamped on
// the transition and left untouched when the incident is already resolved.
func (s Service) Resolve(ctx context.Context, id string) (*incident.Incident, error) {
	status := incident.StatusResolved
	return s.Update(ctx, id, incident.Patch{Status: &status})
}

// Delete removes an incident. Deletions are not broadcast; clients find out on
// their next pull. See DESIGN.md for the asymmetry with create/update.
func (s Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Snapshot exposes the store snapshot for read-only collaborators such as the
// simulator's victim selection.
func (s Service) Snapshot(ctx context.Context) ([]incident.Incident, error) {
	return s.repo.Snapshot(ctx)
}

// Generator returns the synthetic incident source shared with the simulator.
func (s Service) Generator() *Generator {
	return s.gen
}

// Seed inserts n synthetic incidents through the regular write path.
func (s Service) Seed(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.Create(ctx, incident.Draft{}); err != nil {
			return err
		}
	}
	return nil
}

func (s Service) broadcast(kind incident.EventType, inc incident.Incident) {
	if s.hub == nil {
		return
	}
	env, err := incident.NewIncidentEvent(kind, inc)
	if err != nil {
		s.logger.Warn("failed to build change event", "error", err, "id", inc.ID)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("failed to marshal change event", "error", err, "id", inc.ID)
		return
	}
	s.hub.Broadcast(payload)
}

func applyDraft(inc *incident.Incident, draft incident.Draft) {
	if draft.Title != nil {
		inc.Title = *draft.Title
	}
	if draft.Description != nil {
		inc.Description = *draft.Description
	}
	if draft.Severity != nil {
		inc.Severity = *draft.Severity
	}
	if draft.Service != nil {
		inc.Service = *draft.Service
	}
	if draft.Status != nil && *draft.Status != inc.Status {
		inc.Status = *draft.Status
		if inc.Status == incident.StatusResolved {
			at := inc.CreatedAt
			inc.ResolvedAt = &at
		} else {
			inc.ResolvedAt = nil
		}
	}
}

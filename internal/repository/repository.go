package repository

import (
	"context"

	"github.com/statuspulse/incidentd/pkg/incident"
)

// IncidentRepository is the authoritative record store. Implementations must
// serialize mutations against each other and against Snapshot, so a reader
// never observes a half-applied write.
type IncidentRepository interface {
	Insert(ctx context.Context, inc incident.Incident) error
	GetByID(ctx context.Context, id string) (*incident.Incident, error)
	Update(ctx context.Context, id string, patch incident.Patch) (*incident.Incident, error)
	Delete(ctx context.Context, id string) error
	// Snapshot returns a point-in-time copy of the whole collection, ordered
	// deterministically for a fixed store state. Callers must not assume
	// newest-first.
	Snapshot(ctx context.Context) ([]incident.Incident, error)
}

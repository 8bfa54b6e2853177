// Package postgres implements the incident repository on PostgreSQL, for
// deployments that need the collection to survive restarts. The contract is
// identical to the in-memory store; snapshots order by (created_at, id) so a
// fixed database state always yields the same ordering.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/statuspulse/incidentd/internal/repository"
	"github.com/statuspulse/incidentd/pkg/incident"
)

const uniqueViolation = "23505"

// Repository implements persistence on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.IncidentRepository = (*Repository)(nil)

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const incidentColumns = `id, title, description, severity, status, service, created_at, updated_at, resolved_at`

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var inc incident.Incident
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Severity, &inc.Status,
		&inc.Service, &inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &inc, nil
}

// Insert stores a new incident.
func (r *Repository) Insert(ctx context.Context, inc incident.Incident) error {
	const query = `INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, inc.ID, inc.Title, inc.Description, inc.Severity,
		inc.Status, inc.Service, inc.CreatedAt, inc.UpdatedAt, inc.ResolvedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicateID
	}
	return err
}

// GetByID fetches one incident.
func (r *Repository) GetByID(ctx context.Context, id string) (*incident.Incident, error) {
	const query = `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	return scanIncident(r.pool.QueryRow(ctx, query, id))
}

// Update merges the patch inside a transaction. The row is locked for the
// read-merge-write so concurrent patches serialize instead of interleaving.
func (r *Repository) Update(ctx context.Context, id string, patch incident.Patch) (*incident.Incident, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectQuery = `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	inc, err := scanIncident(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		return nil, err
	}
	inc.Apply(patch, time.Now().UTC())

	const updateQuery = `UPDATE incidents
		SET title = $2, description = $3, severity = $4, status = $5, service = $6,
			updated_at = $7, resolved_at = $8
		WHERE id = $1`
	if _, err := tx.Exec(ctx, updateQuery, inc.ID, inc.Title, inc.Description, inc.Severity,
		inc.Status, inc.Service, inc.UpdatedAt, inc.ResolvedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return inc, nil
}

// Delete removes one incident.
func (r *Repository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM incidents WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Snapshot reads the whole collection in one statement, which executes under a
// single MVCC snapshot on the server side.
func (r *Repository) Snapshot(ctx context.Context) ([]incident.Incident, error) {
	const query = `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		var inc incident.Incident
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Severity, &inc.Status,
			&inc.Service, &inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Ping verifies database connectivity for health reporting.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

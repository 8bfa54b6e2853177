// Package incident defines the shared incident model used by both the
// server and the client-side reconciliation engine.
package incident

import (
	"fmt"
	"time"
)

// Severity ranks the impact of an incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every valid severity.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid reports whether the severity is one of the defined values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Status tracks the lifecycle state of an incident.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusOpen, StatusInvestigating, StatusResolved}

// IsValid reports whether the status is one of the defined values.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	default:
		return false
	}
}

// Incident is the unit entity. ID and CreatedAt are immutable after creation;
// UpdatedAt is monotonically non-decreasing; ResolvedAt is present only while
// Status is resolved.
type Incident struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	Service     string     `json:"service"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (i Incident) Clone() Incident {
	out := i
	if i.ResolvedAt != nil {
		at := *i.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Severity    *Severity `json:"severity,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Service     *string   `json:"service,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Severity == nil &&
		p.Status == nil && p.Service == nil
}

// Validate rejects enum values outside the defined severity and status sets,
// so every store sees the same inputs regardless of backend constraints.
func (p Patch) Validate() error {
	if p.Severity != nil && !p.Severity.IsValid() {
		return fmt.Errorf("invalid severity %q", *p.Severity)
	}
	if p.Status != nil && !p.Status.IsValid() {
		return fmt.Errorf("invalid status %q", *p.Status)
	}
	return nil
}

// Apply merges the patch into the incident and refreshes UpdatedAt, keeping it
// monotonically non-decreasing. ResolvedAt is stamped on the transition into
// resolved and cleared on the transition out, so the resolved invariant holds
// regardless of which write path performed the status change.
func (i *Incident) Apply(p Patch, now time.Time) {
	if p.Title != nil {
		i.Title = *p.Title
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.Severity != nil {
		i.Severity = *p.Severity
	}
	if p.Service != nil {
		i.Service = *p.Service
	}
	if p.Status != nil && *p.Status != i.Status {
		i.Status = *p.Status
		if i.Status == StatusResolved {
			at := now
			i.ResolvedAt = &at
		} else {
			i.ResolvedAt = nil
		}
	}
	if now.After(i.UpdatedAt) {
		i.UpdatedAt = now
	}
}

// Draft carries optional caller-supplied fields for creation. Missing fields
// are filled with generated defaults by the service.
type Draft struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Severity    *Severity `json:"severity,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Service     *string   `json:"service,omitempty"`
}

// Validate rejects enum values outside the defined severity and status sets.
func (d Draft) Validate() error {
	if d.Severity != nil && !d.Severity.IsValid() {
		return fmt.Errorf("invalid severity %q", *d.Severity)
	}
	if d.Status != nil && !d.Status.IsValid() {
		return fmt.Errorf("invalid status %q", *d.Status)
	}
	return nil
}

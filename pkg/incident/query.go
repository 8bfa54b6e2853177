package incident

import "strings"

// FilterAll is the identity value disabling a filter predicate.
const FilterAll = "all"

// Pagination bounds applied to every query.
const (
	DefaultPageLimit = 25
	MaxPageLimit     = 200
)

// Filter selects a subset of the incident collection. Predicates combine as a
// conjunction; the zero value of a field (or FilterAll) disables it.
type Filter struct {
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Service  string `json:"service"`
	Search   string `json:"searchQuery"`
}

// DefaultFilter returns the filter matching every incident.
func DefaultFilter() Filter {
	return Filter{Severity: FilterAll, Status: FilterAll, Service: FilterAll}
}

func active(field string) bool {
	return field != "" && field != FilterAll
}

// Matches reports whether the incident satisfies every active predicate.
// Search matches case-insensitively against title, description and service.
func (f Filter) Matches(i Incident) bool {
	if active(f.Severity) && string(i.Severity) != f.Severity {
		return false
	}
	if active(f.Status) && string(i.Status) != f.Status {
		return false
	}
	if active(f.Service) && i.Service != f.Service {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(i.Title), needle) &&
			!strings.Contains(strings.ToLower(i.Description), needle) &&
			!strings.Contains(strings.ToLower(i.Service), needle) {
			return false
		}
	}
	return true
}

// PageRequest selects a slice of the filtered set. Out-of-range values are
// clamped rather than rejected.
type PageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Normalize clamps the request into valid bounds: page >= 1, limit in
// [1, MaxPageLimit] with DefaultPageLimit substituted for an unset limit.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// SeverityCounts aggregates the full filtered set per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// StatusCounts aggregates the full filtered set per status.
type StatusCounts struct {
	Open          int `json:"open"`
	Investigating int `json:"investigating"`
	Resolved      int `json:"resolved"`
	Total         int `json:"total"`
}

// QueryResult is a single page of the filtered set together with aggregates
// computed over the entire filtered set, never extrapolated from the page.
type QueryResult struct {
	Data             []Incident     `json:"data"`
	Page             int            `json:"page"`
	Limit            int            `json:"limit"`
	Total            int            `json:"total"`
	TotalPages       int            `json:"totalPages"`
	CountsBySeverity SeverityCounts `json:"countsBySeverity"`
	CountsByStatus   StatusCounts   `json:"countsByStatus"`
}

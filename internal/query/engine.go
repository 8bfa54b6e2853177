// Package query answers filtered, paginated queries over a store snapshot.
// Aggregates are always computed over the entire filtered set before the page
// slice is taken, so counts reflect the true collection at the instant of the
// snapshot regardless of page or limit.
package query

import "github.com/statuspulse/incidentd/pkg/incident"

// Run evaluates the filter and page request against a snapshot. Out-of-range
// page and limit values are clamped, never rejected. The empty filtered set
// yields total=0, totalPages=1, page=1 and an empty page.
func Run(snapshot []incident.Incident, f incident.Filter, p incident.PageRequest) incident.QueryResult {
	p = p.Normalize()

	filtered := make([]incident.Incident, 0, len(snapshot))
	for _, inc := range snapshot {
		if f.Matches(inc) {
			filtered = append(filtered, inc)
		}
	}

	total := len(filtered)
	result := incident.QueryResult{
		Limit:            p.Limit,
		Total:            total,
		CountsBySeverity: countBySeverity(filtered),
		CountsByStatus:   countByStatus(filtered),
	}

	result.TotalPages = (total + p.Limit - 1) / p.Limit
	if result.TotalPages < 1 {
		result.TotalPages = 1
	}
	result.Page = p.Page
	if result.Page > result.TotalPages {
		result.Page = result.TotalPages
	}

	start := (result.Page - 1) * p.Limit
	end := start + p.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	result.Data = filtered[start:end]
	return result
}

func countBySeverity(set []incident.Incident) incident.SeverityCounts {
	counts := incident.SeverityCounts{Total: len(set)}
	for _, inc := range set {
		switch inc.Severity {
		case incident.SeverityCritical:
			counts.Critical++
		case incident.SeverityHigh:
			counts.High++
		case incident.SeverityMedium:
			counts.Medium++
		case incident.SeverityLow:
			counts.Low++
		}
	}
	return counts
}

func countByStatus(set []incident.Incident) incident.StatusCounts {
	counts := incident.StatusCounts{Total: len(set)}
	for _, inc := range set {
		switch inc.Status {
		case incident.StatusOpen:
			counts.Open++
		case incident.StatusInvestigating:
			counts.Investigating++
		case incident.StatusResolved:
			counts.Resolved++
		}
	}
	return counts
}

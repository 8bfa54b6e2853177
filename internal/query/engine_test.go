package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/statuspulse/incidentd/pkg/incident"
)

func makeIncident(n int, sev incident.Severity, status incident.Status, service string) incident.Incident {
	created := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute)
	return incident.Incident{
		ID:        fmt.Sprintf("incident-%03d", n),
		Title:     fmt.Sprintf("incident number %d", n),
		Severity:  sev,
		Status:    status,
		Service:   service,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestScenarioSeverityFilterWithAggregates(t *testing.T) {
	snapshot := []incident.Incident{
		makeIncident(1, incident.SeverityCritical, incident.StatusOpen, "Database"),
		makeIncident(2, incident.SeverityHigh, incident.StatusOpen, "Storage"),
		makeIncident(3, incident.SeverityCritical, incident.StatusResolved, "Database"),
	}
	f := incident.DefaultFilter()
	f.Severity = "critical"

	result := Run(snapshot, f, incident.PageRequest{Page: 1, Limit: 10})
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	if result.CountsBySeverity.Critical != 2 {
		t.Fatalf("countsBySeverity.critical = %d, want 2", result.CountsBySeverity.Critical)
	}
	if len(result.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(result.Data))
	}
}

func TestPageClampedToLastValidPage(t *testing.T) {
	snapshot := []incident.Incident{
		makeIncident(1, incident.SeverityLow, incident.StatusOpen, "Database"),
		makeIncident(2, incident.SeverityLow, incident.StatusOpen, "Database"),
		makeIncident(3, incident.SeverityLow, incident.StatusOpen, "Database"),
	}

	result := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 5, Limit: 1})
	if result.TotalPages != 3 {
		t.Fatalf("totalPages = %d, want 3", result.TotalPages)
	}
	if result.Page != 3 {
		t.Fatalf("page = %d, want clamped 3", result.Page)
	}
	if len(result.Data) != 1 || result.Data[0].ID != "incident-003" {
		t.Fatalf("expected page 3's single item, got %+v", result.Data)
	}
}

func TestAggregatesIndependentOfPagination(t *testing.T) {
	var snapshot []incident.Incident
	for n := 0; n < 57; n++ {
		sev := incident.Severities[n%len(incident.Severities)]
		status := incident.Statuses[n%len(incident.Statuses)]
		snapshot = append(snapshot, makeIncident(n, sev, status, "API Gateway"))
	}

	first := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 1, Limit: 10})
	last := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 6, Limit: 10})

	if first.Total != 57 || last.Total != 57 {
		t.Fatalf("totals differ across pages: %d vs %d", first.Total, last.Total)
	}
	if first.CountsBySeverity != last.CountsBySeverity {
		t.Fatalf("severity aggregates vary with page: %+v vs %+v", first.CountsBySeverity, last.CountsBySeverity)
	}
	if first.CountsByStatus != last.CountsByStatus {
		t.Fatalf("status aggregates vary with page: %+v vs %+v", first.CountsByStatus, last.CountsByStatus)
	}
	if first.CountsBySeverity.Total != first.Total {
		t.Fatalf("aggregate total %d disagrees with total %d", first.CountsBySeverity.Total, first.Total)
	}
	sum := first.CountsBySeverity.Critical + first.CountsBySeverity.High +
		first.CountsBySeverity.Medium + first.CountsBySeverity.Low
	if sum != first.Total {
		t.Fatalf("severity counts sum to %d, want %d", sum, first.Total)
	}
}

func TestPaginationIsCompleteAndDisjoint(t *testing.T) {
	var snapshot []incident.Incident
	for n := 0; n < 23; n++ {
		snapshot = append(snapshot, makeIncident(n, incident.SeverityMedium, incident.StatusOpen, "Email Service"))
	}

	const limit = 7
	seen := make(map[string]int)
	first := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 1, Limit: limit})
	if first.TotalPages != 4 {
		t.Fatalf("totalPages = %d, want 4", first.TotalPages)
	}
	for page := 1; page <= first.TotalPages; page++ {
		result := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: page, Limit: limit})
		for _, inc := range result.Data {
			seen[inc.ID]++
		}
	}
	if len(seen) != len(snapshot) {
		t.Fatalf("pages cover %d distinct ids, want %d", len(seen), len(snapshot))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("id %s appeared %d times across pages", id, count)
		}
	}
}

func TestEmptyFilteredSet(t *testing.T) {
	snapshot := []incident.Incident{
		makeIncident(1, incident.SeverityLow, incident.StatusOpen, "Storage"),
	}
	f := incident.DefaultFilter()
	f.Search = "no such incident anywhere"

	result := Run(snapshot, f, incident.PageRequest{Page: 4, Limit: 10})
	if result.Total != 0 {
		t.Fatalf("total = %d, want 0", result.Total)
	}
	if result.TotalPages != 1 || result.Page != 1 {
		t.Fatalf("empty set paging = %d/%d, want 1/1", result.Page, result.TotalPages)
	}
	if len(result.Data) != 0 {
		t.Fatalf("expected empty page, got %d items", len(result.Data))
	}
}

func TestLimitClampedNotRejected(t *testing.T) {
	var snapshot []incident.Incident
	for n := 0; n < 300; n++ {
		snapshot = append(snapshot, makeIncident(n, incident.SeverityHigh, incident.StatusOpen, "Storage"))
	}

	oversized := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 1, Limit: 1000})
	if oversized.Limit != incident.MaxPageLimit {
		t.Fatalf("limit = %d, want clamped %d", oversized.Limit, incident.MaxPageLimit)
	}
	if len(oversized.Data) != incident.MaxPageLimit {
		t.Fatalf("len(data) = %d, want %d", len(oversized.Data), incident.MaxPageLimit)
	}

	undersized := Run(snapshot, incident.DefaultFilter(), incident.PageRequest{Page: 1, Limit: -5})
	if undersized.Limit != incident.DefaultPageLimit {
		t.Fatalf("limit = %d, want default %d", undersized.Limit, incident.DefaultPageLimit)
	}
}

func TestSearchCombinesWithOtherPredicates(t *testing.T) {
	snapshot := []incident.Incident{
		makeIncident(1, incident.SeverityCritical, incident.StatusOpen, "Payment Service"),
		makeIncident(2, incident.SeverityCritical, incident.StatusOpen, "Database"),
		makeIncident(3, incident.SeverityLow, incident.StatusOpen, "Payment Service"),
	}
	f := incident.Filter{Severity: "critical", Status: incident.FilterAll, Service: incident.FilterAll, Search: "payment"}

	result := Run(snapshot, f, incident.PageRequest{Page: 1, Limit: 10})
	if result.Total != 1 || result.Data[0].ID != "incident-001" {
		t.Fatalf("conjunction failed: %+v", result)
	}
}

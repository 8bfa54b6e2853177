package incidents

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statuspulse/incidentd/pkg/incident"
)

// Pools for synthetic incidents, used for boot seeding, simulator traffic and
// the defaults a POST body is merged onto.
var (
	synthServices = []string{
		"API Gateway",
		"Auth Service",
		"Database",
		"Payment Service",
		"Email Service",
		"Storage",
	}
	synthTitles = []string{
		"High latency in API responses",
		"Database connection pool exhausted",
		"Payment processing failures",
		"Email delivery delays",
		"Increased error rate in authentication",
		"Storage service unavailable",
		"Memory leak detected in service",
		"Rate limiting triggered",
		"SSL certificate expiring soon",
		"Disk space running low",
	}
	synthDescriptions = []string{
		"Users are experiencing slow response times when accessing the service.",
		"Multiple connection timeouts have been detected in the last 15 minutes.",
		"Service is returning 500 errors for approximately 10% of requests.",
		"Automated monitoring has detected an anomaly in the service behavior.",
		"Resource utilization has exceeded normal thresholds.",
	}
)

// Generator produces synthetic incidents. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a Generator. A seed <= 0 selects a time-based seed.
func NewGenerator(seed int64) *Generator {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Incident returns a fresh synthetic incident stamped at now.
func (g *Generator) Incident(now time.Time) incident.Incident {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := incident.Statuses[g.rng.Intn(len(incident.Statuses))]
	inc := incident.Incident{
		ID:          fmt.Sprintf("incident-%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Title:       synthTitles[g.rng.Intn(len(synthTitles))],
		Description: synthDescriptions[g.rng.Intn(len(synthDescriptions))],
		Severity:    incident.Severities[g.rng.Intn(len(incident.Severities))],
		Status:      status,
		Service:     synthServices[g.rng.Intn(len(synthServices))],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == incident.StatusResolved {
		at := now
		inc.ResolvedAt = &at
	}
	return inc
}

// Status returns a random valid status.
func (g *Generator) Status() incident.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return incident.Statuses[g.rng.Intn(len(incident.Statuses))]
}

// Float64 exposes the generator's randomness for probability draws.
func (g *Generator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// Intn exposes the generator's randomness for index draws.
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Package view holds the client-side reconciliation engine: one state machine
// merging pull-query results and push deltas into a consistent paginated view.
package view

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/statuspulse/incidentd/pkg/incident"
)

// State is the complete view state. It is owned by the Reconciler and only
// mutated through its transitions; callers always receive a detached copy.
type State struct {
	Items            []incident.Incident
	Filters          incident.Filter
	Page             int
	PageSize         int
	Total            int
	TotalPages       int
	CountsBySeverity incident.SeverityCounts
	CountsByStatus   incident.StatusCounts
	Loading          bool
	Error            string
	Connected        bool
	LastUpdatedAt    time.Time
}

func (s State) clone() State {
	out := s
	out.Items = make([]incident.Incident, len(s.Items))
	for i, inc := range s.Items {
		out.Items[i] = inc.Clone()
	}
	return out
}

// Querier answers pull queries. *api.Client satisfies it.
type Querier interface {
	Incidents(ctx context.Context, filter incident.Filter, page incident.PageRequest) (*incident.QueryResult, error)
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithOnChange registers a callback invoked after every state transition with
// a copy of the new state. The callback must not block.
func WithOnChange(fn func(State)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// WithPageSize overrides the initial page size.
func WithPageSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.state.PageSize = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler merges two independent update paths into the view state: pull
// responses replace the page wholesale, push deltas patch individual records
// in place. Every pull request carries a monotonic sequence number, and a
// response older than the latest issued request is discarded instead of
// overwriting newer state.
type Reconciler struct {
	mu       sync.Mutex
	state    State
	querier  Querier
	log      *slog.Logger
	onChange func(State)
	now      func() time.Time
	issued   uint64
	applied  uint64
}

// New constructs a Reconciler with the default filter and page size.
func New(querier Querier, opts ...Option) *Reconciler {
	r := &Reconciler{
		querier: querier,
		log:     slog.Default(),
		now:     time.Now,
		state: State{
			Filters:    incident.DefaultFilter(),
			Page:       1,
			PageSize:   incident.DefaultPageLimit,
			TotalPages: 1,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy of the current view state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Refresh re-issues the pull query for the current filter and page.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.issueQuery(ctx, func(s *State) {})
}

// SetFilters replaces the active filter set. Changing filters invalidates the
// current page position, so page resets to 1 and a query is re-issued.
func (r *Reconciler) SetFilters(ctx context.Context, f incident.Filter) {
	r.issueQuery(ctx, func(s *State) {
		s.Filters = f
		s.Page = 1
	})
}

// SetPage moves to a different page and re-issues the query.
func (r *Reconciler) SetPage(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	r.issueQuery(ctx, func(s *State) { s.Page = page })
}

// SetPageSize changes the page size, resets page to 1 and re-issues the query.
func (r *Reconciler) SetPageSize(ctx context.Context, size int) {
	if size < 1 {
		size = 1
	}
	r.issueQuery(ctx, func(s *State) {
		s.PageSize = size
		s.Page = 1
	})
}

// SetConnected mirrors the connection manager's state.
func (r *Reconciler) SetConnected(connected bool) {
	r.mu.Lock()
	changed := r.state.Connected != connected
	r.state.Connected = connected
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// ApplyDelta merges one push event into the view. Created and updated both
// upsert: an item already in the page is replaced in place, an unknown one is
// prepended. The delta is NOT re-checked against the active filter, so a
// pushed record that would not match may transiently appear until the next
// pull; that latency-over-exactness tradeoff is deliberate. Applying the same
// delta twice is a no-op beyond the timestamp.
func (r *Reconciler) ApplyDelta(env incident.Envelope) {
	switch env.Type {
	case incident.EventIncidentCreated, incident.EventIncidentUpdated:
	case incident.EventConnectionEstablished:
		return
	default:
		r.log.Debug("ignoring unknown stream event", "type", env.Type)
		return
	}
	inc, err := env.Incident()
	if err != nil {
		r.log.Warn("dropping malformed delta", "error", err)
		return
	}

	r.mu.Lock()
	replaced := false
	for i := range r.state.Items {
		if r.state.Items[i].ID == inc.ID {
			r.state.Items[i] = inc
			replaced = true
			break
		}
	}
	if !replaced {
		r.state.Items = append([]incident.Incident{inc}, r.state.Items...)
	}
	r.state.LastUpdatedAt = r.now()
	r.mu.Unlock()
	r.notify()
}

// RemoveLocal drops an item from the view by id. The server does not broadcast
// deletions today; this exists for callers that learn about them out of band.
func (r *Reconciler) RemoveLocal(id string) {
	r.mu.Lock()
	for i := range r.state.Items {
		if r.state.Items[i].ID == id {
			r.state.Items = append(r.state.Items[:i], r.state.Items[i+1:]...)
			r.state.LastUpdatedAt = r.now()
			break
		}
	}
	r.mu.Unlock()
	r.notify()
}

// issueQuery applies the transition, stamps a new sequence number and runs the
// pull in the background.
func (r *Reconciler) issueQuery(ctx context.Context, transition func(*State)) {
	r.mu.Lock()
	transition(&r.state)
	r.state.Loading = true
	r.issued++
	seq := r.issued
	filter := r.state.Filters
	page := incident.PageRequest{Page: r.state.Page, Limit: r.state.PageSize}
	r.mu.Unlock()
	r.notify()

	go r.fetch(ctx, seq, filter, page)
}

func (r *Reconciler) fetch(ctx context.Context, seq uint64, filter incident.Filter, page incident.PageRequest) {
	result, err := r.querier.Incidents(ctx, filter, page)

	r.mu.Lock()
	if seq < r.issued || seq <= r.applied {
		// A newer request superseded this one; its response owns the state.
		r.mu.Unlock()
		r.log.Debug("discarding stale query response", "seq", seq, "issued", r.issued)
		return
	}
	r.applied = seq
	if err != nil {
		// Stale-but-visible data beats blanking the view: keep Items.
		r.state.Loading = false
		r.state.Error = err.Error()
		r.mu.Unlock()
		r.notify()
		return
	}
	r.state.Items = result.Data
	r.state.Page = result.Page
	r.state.PageSize = result.Limit
	r.state.Total = result.Total
	r.state.TotalPages = result.TotalPages
	r.state.CountsBySeverity = result.CountsBySeverity
	r.state.CountsByStatus = result.CountsByStatus
	r.state.Loading = false
	r.state.Error = ""
	r.state.LastUpdatedAt = r.now()
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) notify() {
	if r.onChange == nil {
		return
	}
	r.onChange(r.State())
}

// Package simulator injects synthetic incident traffic on a timer so the
// store, query engine and broadcaster see concurrent load without real
// clients. It writes through the same service path as the REST API.
package simulator

import (
	"context"
	"time"

	"log/slog"

	"github.com/statuspulse/incidentd/internal/service/incidents"
	"github.com/statuspulse/incidentd/pkg/incident"
)

// Probabilities per tick.
const (
	defaultCreateProb = 0.3
	defaultUpdateProb = 0.2
)

// Simulator drives periodic synthetic creations and status mutations.
type Simulator struct {
	svc        incidents.Service
	logger     *slog.Logger
	interval   time.Duration
	createProb float64
	updateProb float64
}

// New constructs a Simulator ticking at the given interval.
func New(svc incidents.Service, logger *slog.Logger, interval time.Duration) *Simulator {
	return &Simulator{
		svc:        svc,
		logger:     logger,
		interval:   interval,
		createProb: defaultCreateProb,
		updateProb: defaultUpdateProb,
	}
}

// Run ticks until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("simulator started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		}
	}
}

// Tick performs one round of synthetic traffic: with independent probability,
// create a new incident and mutate the status of one random non-resolved one.
func (s *Simulator) Tick(ctx context.Context) {
	gen := s.svc.Generator()

	if gen.Float64() < s.createProb {
		inc, err := s.svc.Create(ctx, incident.Draft{})
		if err != nil {
			s.logger.Warn("simulated creation failed", "error", err)
		} else {
			s.logger.Debug("generated incident", "id", inc.ID)
		}
	}

	if gen.Float64() < s.updateProb {
		s.mutateRandom(ctx)
	}
}

func (s *Simulator) mutateRandom(ctx context.Context) {
	snapshot, err := s.svc.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("simulator snapshot failed", "error", err)
		return
	}
	if len(snapshot) == 0 {
		return
	}
	gen := s.svc.Generator()
	victim := snapshot[gen.Intn(len(snapshot))]
	if victim.Status == incident.StatusResolved {
		return
	}
	status := gen.Status()
	if _, err := s.svc.Update(ctx, victim.ID, incident.Patch{Status: &status}); err != nil {
		s.logger.Warn("simulated update failed", "error", err, "id", victim.ID)
		return
	}
	s.logger.Debug("updated incident", "id", victim.ID, "status", status)
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-crm-sync/internal/reservation"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"
)

// ConflictError is returned when the requested scope is already being synced
type ConflictError struct {
	Reason    string
	Conflicts *reservation.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync rejected: %s", e.Reason)
}

// Syncer runs one sync
type Syncer interface {
	Run(ctx context.Context, opts RunOptions) (Report, error)
}

// Runner admits a sync only when its scope is free and holds the reservation for the
// whole run, releasing it however the run ends.
type Runner struct {
	syncer Syncer
	guard  reservation.Guard
	logger *slog.Logger
}

func NewRunner(s Syncer, g reservation.Guard, l *slog.Logger) *Runner {
	return &Runner{syncer: s, guard: g, logger: l}
}

func (r *Runner) Run(ctx context.Context, opts RunOptions) (Report, error) {
	outcome := r.guard.Reserve(opts.CompanyIDs)
	if !outcome.OK {
		metrics.ReservationConflicts.Inc()
		metrics.Runs.WithLabelValues("conflict").Inc()
		r.logger.Warn("Sync rejected by reservation guard", "reason", outcome.Reason, "company_ids", opts.CompanyIDs)
		return Report{}, &ConflictError{Reason: outcome.Reason, Conflicts: outcome.Conflicts}
	}
	r.observeReservations()

	defer func() {
		r.guard.Release(opts.CompanyIDs)
		r.observeReservations()
	}()

	report, err := r.syncer.Run(ctx, opts)
	if err != nil {
		metrics.Runs.WithLabelValues("failed").Inc()
		return report, err
	}
	metrics.Runs.WithLabelValues("success").Inc()
	return report, nil
}

// State exposes the guard for status endpoints
func (r *Runner) State() reservation.State {
	return r.guard.State()
}

func (r *Runner) observeReservations() {
	st := r.guard.State()
	global := 0.0
	if st.Global {
		global = 1
	}
	metrics.ActiveReservations.WithLabelValues("global").Set(global)
	metrics.ActiveReservations.WithLabelValues("companies").Set(float64(len(st.Companies)))
}

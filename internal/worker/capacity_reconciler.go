package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// Reconciler recomputes denormalized enrollment counters.
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID *uuid.UUID) (*model.ReconcileResult, error)
}

// CapacityReconciler periodically repairs class and tenant counters that
// drifted because of writes outside the bulk pipeline.
type CapacityReconciler struct {
	svc      Reconciler
	schedule cron.Schedule
	spec     string
	log      zerolog.Logger
}

// NewCapacityReconciler parses spec (standard cron or @descriptor syntax).
func NewCapacityReconciler(svc Reconciler, spec string, log zerolog.Logger) (*CapacityReconciler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", spec, err)
	}
	return &CapacityReconciler{
		svc:      svc,
		schedule: schedule,
		spec:     spec,
		log:      log.With().Str("component", "capacity_reconciler").Logger(),
	}, nil
}

// Start runs the schedule until ctx is cancelled. Call in a goroutine.
func (r *CapacityReconciler) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() { r.RunOnce(ctx) }))
	c.Start()
	r.log.Info().Str("schedule", r.spec).Msg("CapacityReconciler started")

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info().Msg("CapacityReconciler stopped")
}

// RunOnce reconciles every tenant now.
func (r *CapacityReconciler) RunOnce(ctx context.Context) {
	res, err := r.svc.Reconcile(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error().Err(err).Msg("Capacity reconciliation failed")
		}
		return
	}
	r.log.Debug().
		Int("classes_updated", res.ClassesUpdated).
		Int("tenants_updated", res.TenantsUpdated).
		Msg("Capacity reconciliation finished")
}

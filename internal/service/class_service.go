package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/capacity"
	"github.com/schoolhub/bulkops-backend/internal/metrics"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
)

// ClassService exposes class occupancy and keeps denormalized counters honest.
type ClassService struct {
	pool    *pgxpool.Pool
	classes *repository.ClassRepository
	tenants *repository.TenantRepository
	checker *capacity.Checker
	metrics *metrics.Collector
	log     zerolog.Logger
}

// NewClassService creates a new ClassService.
func NewClassService(
	pool *pgxpool.Pool,
	classes *repository.ClassRepository,
	tenants *repository.TenantRepository,
	checker *capacity.Checker,
	m *metrics.Collector,
	log zerolog.Logger,
) *ClassService {
	return &ClassService{
		pool:    pool,
		classes: classes,
		tenants: tenants,
		checker: checker,
		metrics: m,
		log:     log.With().Str("component", "class_service").Logger(),
	}
}

// Capacity returns the occupancy of a class.
func (s *ClassService) Capacity(ctx context.Context, id uuid.UUID) (*model.ClassCapacity, error) {
	c, err := s.classes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model.ClassCapacity{
		ClassID:         c.ID,
		MaximumStudents: c.MaximumStudents,
		CurrentStudents: c.CurrentStudents,
		AvailableSpots:  s.checker.Available(c.ID, c.MaximumStudents, c.CurrentStudents),
	}, nil
}

// Reconcile recomputes class and tenant counters from active enrollments.
// A nil tenantID reconciles every tenant.
func (s *ClassService) Reconcile(ctx context.Context, tenantID *uuid.UUID) (*model.ReconcileResult, error) {
	result := &model.ReconcileResult{}
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		classes, err := s.classes.Reconcile(ctx, tx, tenantID, nil)
		if err != nil {
			return err
		}
		tenants, err := s.tenants.ReconcileEnrollment(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		result.ClassesUpdated, result.TenantsUpdated = int(classes), int(tenants)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Reconciled(result.ClassesUpdated)
	if result.ClassesUpdated > 0 || result.TenantsUpdated > 0 {
		s.log.Warn().
			Int("classes_updated", result.ClassesUpdated).
			Int("tenants_updated", result.TenantsUpdated).
			Msg("Corrected drifted enrollment counters")
	}
	return result, nil
}

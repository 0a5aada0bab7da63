package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/capacity"
	"github.com/schoolhub/bulkops-backend/internal/metrics"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// Enrollment errors.
var (
	ErrClassNotFound       = errors.New("class not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrCapacityExceeded    = errors.New("not enough spots available")
	ErrSameAcademicYear    = errors.New("new academic year must differ from the current one")
	ErrSameClass           = errors.New("source and target class must differ")
	ErrClassTenantMismatch = errors.New("classes belong to different tenants")
	ErrEnrollmentConflict  = errors.New("enrollment conflicts with a concurrent change")
)

// CapacityError reports an all-or-nothing capacity rejection.
type CapacityError struct {
	Available int
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Not enough spots available. Available: %d, Requested: %d", e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrCapacityExceeded) match.
func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// Rejection reasons reported per student.
const (
	reasonNotFound        = "Student not found"
	reasonAlreadyEnrolled = "Already enrolled"
	reasonActiveElsewhere = "Active enrollment in another class"
)

// EnrollmentService implements enrollment bulk operations. Every operation
// that changes who sits in a class runs in one transaction together with
// the class counter update.
type EnrollmentService struct {
	pool        *pgxpool.Pool
	tenants     *repository.TenantRepository
	classes     *repository.ClassRepository
	students    *repository.StudentRepository
	enrollments *repository.EnrollmentRepository
	checker     *capacity.Checker
	metrics     *metrics.Collector
	log         zerolog.Logger
}

// NewEnrollmentService creates a new EnrollmentService.
func NewEnrollmentService(
	pool *pgxpool.Pool,
	tenants *repository.TenantRepository,
	classes *repository.ClassRepository,
	students *repository.StudentRepository,
	enrollments *repository.EnrollmentRepository,
	checker *capacity.Checker,
	m *metrics.Collector,
	log zerolog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		pool:        pool,
		tenants:     tenants,
		classes:     classes,
		students:    students,
		enrollments: enrollments,
		checker:     checker,
		metrics:     m,
		log:         log.With().Str("component", "enrollment_service").Logger(),
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func mapTxError(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: %v", ErrEnrollmentConflict, err)
	}
	return err
}

// ─── Bulk enroll ────────────────────────────────────────────────────

// BulkEnroll enrolls students into one class. The capacity pre-flight is
// all-or-nothing on the deduplicated request: when it fails nobody is
// enrolled. Students that cannot be enrolled for individual reasons are
// reported and skipped.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, req *model.BulkEnrollRequest) (*model.BulkEnrollResult, error) {
	ids := dedupe(req.StudentIDs)
	result := &model.BulkEnrollResult{
		Successful: []model.EnrollmentOutcome{},
		Failed:     []model.EnrollmentOutcome{},
	}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		class, err := s.classes.LockByID(ctx, tx, req.ClassID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrClassNotFound
		}
		if err != nil {
			return err
		}

		available := s.checker.Available(class.ID, class.MaximumStudents, class.CurrentStudents)
		if len(ids) > available {
			return &CapacityError{Available: available, Requested: len(ids)}
		}

		inTenant, err := s.students.InTenant(ctx, tx, class.TenantID, ids)
		if err != nil {
			return err
		}
		enrolled, err := s.enrollments.EnrolledInClass(ctx, tx, class.ID, req.AcademicYear, ids)
		if err != nil {
			return err
		}
		elsewhere, err := s.enrollments.ActiveElsewhere(ctx, tx, class.ID, req.AcademicYear, ids)
		if err != nil {
			return err
		}

		accepted, failed := screenStudents(ids, inTenant, enrolled, elsewhere)
		result.Failed = append(result.Failed, failed...)
		rows := make([]repository.NewEnrollment, 0, len(accepted))
		for _, id := range accepted {
			result.Successful = append(result.Successful, model.EnrollmentOutcome{StudentID: id})
			rows = append(rows, repository.NewEnrollment{
				StudentID:      id,
				ClassID:        class.ID,
				AcademicYear:   req.AcademicYear,
				EnrollmentDate: today(),
				Status:         model.EnrollmentActive,
			})
		}

		current, maximum := class.CurrentStudents, class.MaximumStudents
		if len(rows) > 0 {
			if _, err := s.enrollments.Insert(ctx, tx, rows); err != nil {
				return err
			}
			cc, ok, err := s.classes.AddStudents(ctx, tx, class.ID, len(rows))
			if err != nil {
				return err
			}
			if !ok {
				return &CapacityError{Available: available, Requested: len(rows)}
			}
			current, maximum = cc.CurrentStudents, cc.MaximumStudents
		}
		result.ClassCapacityAfter = fmt.Sprintf("%d/%d", current, maximum)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.metrics.EnrollRejected("capacity", len(ids))
		}
		return nil, mapTxError(err)
	}

	result.SuccessfulEnrollments = len(result.Successful)
	result.FailedEnrollments = len(result.Failed)
	s.countRejections(result.Failed)
	s.log.Info().
		Str("class_id", req.ClassID.String()).
		Int("enrolled", result.SuccessfulEnrollments).
		Int("rejected", result.FailedEnrollments).
		Msg("Bulk enrollment finished")
	return result, nil
}

// screenStudents splits a bulk enroll request into the students that can
// be enrolled and those rejected with a reason. The first failing check wins.
func screenStudents(ids []uuid.UUID, inTenant, enrolled, elsewhere map[uuid.UUID]bool) ([]uuid.UUID, []model.EnrollmentOutcome) {
	accepted := make([]uuid.UUID, 0, len(ids))
	var failed []model.EnrollmentOutcome
	for _, id := range ids {
		reason := ""
		switch {
		case !inTenant[id]:
			reason = reasonNotFound
		case enrolled[id]:
			reason = reasonAlreadyEnrolled
		case elsewhere[id]:
			reason = reasonActiveElsewhere
		}
		if reason != "" {
			failed = append(failed, model.EnrollmentOutcome{StudentID: id, Reason: reason})
			continue
		}
		accepted = append(accepted, id)
	}
	return accepted, failed
}

func (s *EnrollmentService) countRejections(failed []model.EnrollmentOutcome) {
	counts := map[string]int{}
	for _, f := range failed {
		counts[f.Reason]++
	}
	for reason, n := range counts {
		s.metrics.EnrollRejected(reason, n)
	}
}

// ─── Academic-year rollover ─────────────────────────────────────────

// Rollover promotes every student of the tenant holding an active
// enrollment in CurrentYear: grade +1, academic year set to NewYear, and
// the enrollment closed as completed. Everything happens in one
// transaction; students without such an enrollment are untouched.
func (s *EnrollmentService) Rollover(ctx context.Context, req *model.RolloverRequest) (*model.RolloverResult, error) {
	if req.CurrentYear == req.NewYear {
		return nil, ErrSameAcademicYear
	}
	result := &model.RolloverResult{
		PreviousAcademicYear: req.CurrentYear,
		NewAcademicYear:      req.NewYear,
		TenantID:             req.TenantID,
	}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.tenants.LockByID(ctx, tx, req.TenantID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTenantNotFound
			}
			return err
		}

		ids, err := s.enrollments.ActiveStudentsOfTenant(ctx, tx, req.TenantID, req.CurrentYear)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		promoted, err := s.students.Promote(ctx, tx, ids, req.NewYear)
		if err != nil {
			return err
		}
		completed, err := s.enrollments.CompleteForTenant(ctx, tx, req.TenantID, req.CurrentYear, ids)
		if err != nil {
			return err
		}

		classIDs, err := s.enrollments.TenantClassIDs(ctx, tx, req.TenantID, req.CurrentYear)
		if err != nil {
			return err
		}
		if _, err := s.classes.RecomputeCounts(ctx, tx, classIDs); err != nil {
			return err
		}
		if _, err := s.tenants.ReconcileEnrollment(ctx, tx, &req.TenantID); err != nil {
			return err
		}

		result.PromotedStudents = int(promoted)
		result.CompletedEnrollments = int(completed)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}

	s.log.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("from", req.CurrentYear).
		Str("to", req.NewYear).
		Int("promoted", result.PromotedStudents).
		Msg("Academic year rollover finished")
	return result, nil
}

// ─── Status, withdraw, delete ───────────────────────────────────────

// UpdateStatus changes enrollment statuses and recomputes the affected
// class counters. Reactivations that would overfill a class are rejected.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, req *model.BulkStatusUpdateRequest) (*model.BulkUpdateResult, error) {
	result := &model.BulkUpdateResult{}
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		n, classIDs, err := s.enrollments.SetStatus(ctx, tx, dedupe(req.EnrollmentIDs), req.Status)
		if err != nil {
			return err
		}
		if err := s.recompute(ctx, tx, classIDs); err != nil {
			return err
		}
		result.UpdatedCount, result.AffectedClasses = n, len(classIDs)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

// Withdraw withdraws students from their active enrollments of a year.
func (s *EnrollmentService) Withdraw(ctx context.Context, req *model.BulkWithdrawRequest) (*model.BulkUpdateResult, error) {
	result := &model.BulkUpdateResult{}
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		n, classIDs, err := s.enrollments.Withdraw(ctx, tx, dedupe(req.StudentIDs), req.AcademicYear, req.Reason)
		if err != nil {
			return err
		}
		if err := s.recompute(ctx, tx, classIDs); err != nil {
			return err
		}
		result.UpdatedCount, result.AffectedClasses = n, len(classIDs)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

// Delete soft-deletes enrollments.
func (s *EnrollmentService) Delete(ctx context.Context, req *model.BulkDeleteRequest) (*model.BulkUpdateResult, error) {
	result := &model.BulkUpdateResult{}
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		n, classIDs, err := s.enrollments.SoftDelete(ctx, tx, dedupe(req.EnrollmentIDs))
		if err != nil {
			return err
		}
		if err := s.recompute(ctx, tx, classIDs); err != nil {
			return err
		}
		result.UpdatedCount, result.AffectedClasses = n, len(classIDs)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

func (s *EnrollmentService) recompute(ctx context.Context, tx pgx.Tx, classIDs []uuid.UUID) error {
	if _, err := s.classes.RecomputeCounts(ctx, tx, classIDs); err != nil {
		return err
	}
	over, err := s.classes.OverCapacity(ctx, tx, classIDs)
	if err != nil {
		return err
	}
	if len(over) > 0 {
		return &CapacityError{Available: 0, Requested: len(over)}
	}
	return nil
}

// ─── Transfer ───────────────────────────────────────────────────────

// Transfer moves students actively enrolled in FromClassID to ToClassID.
// Students not active in the source class are skipped. The target capacity
// check is all-or-nothing.
func (s *EnrollmentService) Transfer(ctx context.Context, req *model.BulkTransferRequest) (*model.TransferResult, error) {
	if req.FromClassID == req.ToClassID {
		return nil, ErrSameClass
	}
	ids := dedupe(req.StudentIDs)
	result := &model.TransferResult{
		Skipped:      []uuid.UUID{},
		FromClassID:  req.FromClassID,
		ToClassID:    req.ToClassID,
		AcademicYear: req.AcademicYear,
	}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		from, to, err := s.lockPair(ctx, tx, req.FromClassID, req.ToClassID)
		if err != nil {
			return err
		}
		if from.TenantID != to.TenantID {
			return ErrClassTenantMismatch
		}

		active, err := s.enrollments.ActiveInClass(ctx, tx, from.ID, req.AcademicYear, ids)
		if err != nil {
			return err
		}
		movers := make([]uuid.UUID, 0, len(ids))
		for _, id := range ids {
			if active[id] {
				movers = append(movers, id)
			} else {
				result.Skipped = append(result.Skipped, id)
			}
		}
		if len(movers) == 0 {
			return nil
		}

		if !s.checker.CanAdmit(to.ID, to.MaximumStudents, to.CurrentStudents, len(movers)) {
			return &CapacityError{
				Available: capacity.AvailableSpots(to.MaximumStudents, to.CurrentStudents),
				Requested: len(movers),
			}
		}

		if _, err := s.enrollments.MarkTransferred(ctx, tx, from.ID, req.AcademicYear, movers); err != nil {
			return err
		}
		rows := make([]repository.NewEnrollment, len(movers))
		for i, id := range movers {
			rows[i] = repository.NewEnrollment{
				StudentID:      id,
				ClassID:        to.ID,
				AcademicYear:   req.AcademicYear,
				EnrollmentDate: today(),
				Status:         model.EnrollmentActive,
			}
		}
		if _, err := s.enrollments.Insert(ctx, tx, rows); err != nil {
			return err
		}
		if _, err := s.classes.RecomputeCounts(ctx, tx, []uuid.UUID{from.ID, to.ID}); err != nil {
			return err
		}
		result.TransferredStudents = len(movers)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

// lockPair locks two classes in id order.
func (s *EnrollmentService) lockPair(ctx context.Context, tx pgx.Tx, a, b uuid.UUID) (*model.Class, *model.Class, error) {
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := map[uuid.UUID]*model.Class{}
	for _, id := range []uuid.UUID{first, second} {
		c, err := s.classes.LockByID(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrClassNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		locked[id] = c
	}
	return locked[a], locked[b], nil
}

// ─── Grade-wide assignment ──────────────────────────────────────────

// EnrollByGrade spreads the grade's unenrolled students evenly over the
// target classes, never exceeding a class's free seats.
func (s *EnrollmentService) EnrollByGrade(ctx context.Context, req *model.EnrollByGradeRequest) (*model.AssignmentResult, error) {
	targets := dedupe(req.TargetClassIDs)
	result := &model.AssignmentResult{AcademicYear: req.AcademicYear}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.lockTenant(ctx, tx, req.TenantID); err != nil {
			return err
		}
		classes, err := s.classes.LockMany(ctx, tx, req.TenantID, req.AcademicYear, targets)
		if err != nil {
			return err
		}
		if len(classes) != len(targets) {
			return ErrClassNotFound
		}
		byID := make(map[uuid.UUID]model.Class, len(classes))
		for _, c := range classes {
			byID[c.ID] = c
		}
		slots := make([]capacity.Slot, len(targets))
		for i, id := range targets {
			c := byID[id]
			slots[i] = capacity.Slot{ClassID: id, Available: s.checker.Available(id, c.MaximumStudents, c.CurrentStudents)}
		}

		students, err := s.students.UnenrolledByGrade(ctx, tx, req.TenantID, req.GradeLevel, req.AcademicYear)
		if err != nil {
			return err
		}
		plan := capacity.Distribute(students, slots)
		if err := s.applyPlan(ctx, tx, plan, req.AcademicYear); err != nil {
			return err
		}

		result.TotalUnenrolled = len(students)
		result.AssignedStudents = plan.Assigned()
		result.UnassignedCount = len(plan.Leftover)
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

// AutoAssign fills every open class of the tenant with unenrolled students
// of the class's grade, classes with the most free seats first.
func (s *EnrollmentService) AutoAssign(ctx context.Context, req *model.AutoAssignRequest) (*model.AssignmentResult, error) {
	result := &model.AssignmentResult{AcademicYear: req.AcademicYear}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.lockTenant(ctx, tx, req.TenantID); err != nil {
			return err
		}
		classes, err := s.classes.LockOpenClasses(ctx, tx, req.TenantID, req.AcademicYear, req.GradeLevel)
		if err != nil {
			return err
		}

		byGrade := map[int][]capacity.Slot{}
		for _, c := range classes {
			byGrade[c.GradeLevel] = append(byGrade[c.GradeLevel], capacity.Slot{
				ClassID:   c.ID,
				Available: s.checker.Available(c.ID, c.MaximumStudents, c.CurrentStudents),
			})
		}
		grades := make([]int, 0, len(byGrade))
		for g := range byGrade {
			grades = append(grades, g)
		}
		sort.Ints(grades)

		for _, g := range grades {
			students, err := s.students.UnenrolledByGrade(ctx, tx, req.TenantID, g, req.AcademicYear)
			if err != nil {
				return err
			}
			plan := capacity.Assign(students, byGrade[g])
			if err := s.applyPlan(ctx, tx, plan, req.AcademicYear); err != nil {
				return err
			}
			result.TotalUnenrolled += len(students)
			result.AssignedStudents += plan.Assigned()
			result.UnassignedCount += len(plan.Leftover)
		}
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

func (s *EnrollmentService) lockTenant(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	err := s.tenants.LockByID(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTenantNotFound
	}
	return err
}

func (s *EnrollmentService) applyPlan(ctx context.Context, tx pgx.Tx, plan *capacity.Plan, year string) error {
	var rows []repository.NewEnrollment
	classIDs := make([]uuid.UUID, 0, len(plan.Assignments))
	for classID, students := range plan.Assignments {
		if len(students) == 0 {
			continue
		}
		classIDs = append(classIDs, classID)
		for _, id := range students {
			rows = append(rows, repository.NewEnrollment{
				StudentID:      id,
				ClassID:        classID,
				AcademicYear:   year,
				EnrollmentDate: today(),
				Status:         model.EnrollmentActive,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.enrollments.Insert(ctx, tx, rows); err != nil {
		return err
	}
	return s.recompute(ctx, tx, classIDs)
}

// ─── Statistics ─────────────────────────────────────────────────────

// Statistics summarizes a tenant's enrollments.
func (s *EnrollmentService) Statistics(ctx context.Context, tenantID uuid.UUID, year *string) (*model.EnrollmentStatistics, error) {
	st, err := s.enrollments.Statistics(ctx, tenantID, year)
	if err != nil {
		return nil, err
	}
	total, err := s.students.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		st.EnrollmentRate = math.Round(float64(st.ActiveEnrollments)/float64(total)*10000) / 100
	}
	return st, nil
}

// ─── Import ─────────────────────────────────────────────────────────

type classYear struct {
	classID uuid.UUID
	year    string
}

// ImportEnrollments writes uploaded enrollment rows grouped by class and
// year. Each group is one transaction; a group whose active rows exceed
// the class's free seats has those rows rejected. A uniqueness violation
// rolls the group back and retries it row by row.
func (s *EnrollmentService) ImportEnrollments(ctx context.Context, rows []model.EnrollmentRow, progress ProgressFunc) (*model.BulkResult, error) {
	return s.importRows(ctx, rows, progress, s.importGroup)
}

// groupImporter writes one class/year group and returns the inserted count
// and per-row errors, or an error that rolled the whole group back.
type groupImporter func(ctx context.Context, k classYear, group []model.EnrollmentRow) (int, []model.RowError, error)

func (s *EnrollmentService) importRows(ctx context.Context, rows []model.EnrollmentRow, progress ProgressFunc, importGroup groupImporter) (*model.BulkResult, error) {
	res := &model.BulkResult{TotalRows: len(rows)}

	var order []classYear
	groups := map[classYear][]model.EnrollmentRow{}
	seen := map[string]bool{}
	for _, row := range rows {
		key := row.StudentID.String() + "|" + row.AcademicYear
		if seen[key] {
			res.Failed++
			res.Errors = append(res.Errors, model.RowError{
				RowNumber: row.RowNumber,
				Key:       row.StudentID.String(),
				Error:     "Duplicate student for this academic year in upload",
			})
			continue
		}
		seen[key] = true
		k := classYear{row.ClassID, row.AcademicYear}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}

	processed := res.Failed
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := groups[k]
		ok, errs, err := importGroup(ctx, k, group)
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Warn().Err(err).Str("class_id", k.classID.String()).Msg("Group insert hit unique constraint, retrying row by row")
			ok, errs = 0, nil
			for i := range group {
				n, rowErrs, err := importGroup(ctx, k, group[i:i+1])
				if err != nil {
					rowErrs = []model.RowError{{
						RowNumber: group[i].RowNumber,
						Key:       group[i].StudentID.String(),
						Error:     "Enrollment conflicts with an existing enrollment",
					}}
				}
				ok += n
				errs = append(errs, rowErrs...)
			}
		} else if err != nil {
			s.log.Error().Err(err).Str("class_id", k.classID.String()).Msg("Group import failed")
			start, end := group[0].RowNumber, group[len(group)-1].RowNumber
			errs = []model.RowError{{
				Error:      "Batch processing failed: " + err.Error(),
				BatchStart: &start,
				BatchEnd:   &end,
			}}
			ok = 0
		}

		res.Successful += ok
		res.Failed += len(group) - ok
		res.Errors = append(res.Errors, errs...)
		processed += len(group)
		if progress != nil {
			progress(tracker.Progress{Processed: processed, Successful: res.Successful, Failed: res.Failed})
		}
	}
	return res, nil
}

// importGroup enrolls rows sharing a class and year in one transaction. It
// returns the inserted count and per-row errors, or a transaction error.
func (s *EnrollmentService) importGroup(ctx context.Context, k classYear, group []model.EnrollmentRow) (int, []model.RowError, error) {
	var (
		inserted int
		errs     []model.RowError
	)
	fail := func(row model.EnrollmentRow, msg string) {
		errs = append(errs, model.RowError{RowNumber: row.RowNumber, Key: row.StudentID.String(), Error: msg})
	}

	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		inserted, errs = 0, nil

		class, err := s.classes.LockByID(ctx, tx, k.classID)
		if errors.Is(err, repository.ErrNotFound) {
			for _, row := range group {
				fail(row, fmt.Sprintf("Class %s not found", k.classID))
			}
			return nil
		}
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(group))
		for i, row := range group {
			ids[i] = row.StudentID
		}
		inTenant, err := s.students.InTenant(ctx, tx, class.TenantID, ids)
		if err != nil {
			return err
		}
		enrolled, err := s.enrollments.EnrolledInClass(ctx, tx, class.ID, k.year, ids)
		if err != nil {
			return err
		}
		elsewhere, err := s.enrollments.ActiveElsewhere(ctx, tx, class.ID, k.year, ids)
		if err != nil {
			return err
		}

		available := s.checker.Available(class.ID, class.MaximumStudents, class.CurrentStudents)
		var active, accepted []model.EnrollmentRow
		active, accepted, errs = screenGroup(group, inTenant, enrolled, elsewhere, available)
		if len(accepted) == 0 {
			return nil
		}
		rows := make([]repository.NewEnrollment, len(accepted))
		for i, row := range accepted {
			date := today()
			if row.EnrollmentDate != nil {
				date = *row.EnrollmentDate
			}
			rows[i] = repository.NewEnrollment{
				StudentID:      row.StudentID,
				ClassID:        class.ID,
				AcademicYear:   k.year,
				EnrollmentDate: date,
				Status:         row.Status,
			}
		}
		if _, err := s.enrollments.Insert(ctx, tx, rows); err != nil {
			return err
		}
		if len(active) > 0 {
			if _, ok, err := s.classes.AddStudents(ctx, tx, class.ID, len(active)); err != nil {
				return err
			} else if !ok {
				return &CapacityError{Available: available, Requested: len(active)}
			}
		}
		inserted = len(accepted)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return inserted, errs, nil
}

// screenGroup applies the per-row checks of an import group against a class
// with available free seats. It returns the active rows that take a seat,
// every row to insert, and the rejected rows. Active rows are rejected
// together when they do not all fit.
func screenGroup(group []model.EnrollmentRow, inTenant, enrolled, elsewhere map[uuid.UUID]bool, available int) (active, accepted []model.EnrollmentRow, errs []model.RowError) {
	fail := func(row model.EnrollmentRow, msg string) {
		errs = append(errs, model.RowError{RowNumber: row.RowNumber, Key: row.StudentID.String(), Error: msg})
	}
	var other []model.EnrollmentRow
	for _, row := range group {
		switch {
		case !inTenant[row.StudentID]:
			fail(row, reasonNotFound)
		case enrolled[row.StudentID]:
			fail(row, reasonAlreadyEnrolled)
		case row.Status == model.EnrollmentActive && elsewhere[row.StudentID]:
			fail(row, reasonActiveElsewhere)
		case row.Status == model.EnrollmentActive:
			active = append(active, row)
		default:
			other = append(other, row)
		}
	}
	if len(active) > available {
		msg := fmt.Sprintf("Class capacity exceeded. Available: %d, Requested: %d", available, len(active))
		for _, row := range active {
			fail(row, msg)
		}
		active = nil
	}
	accepted = append(append(accepted, active...), other...)
	return active, accepted, errs
}

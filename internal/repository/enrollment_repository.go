package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// EnrollmentRepository handles enrollment data access. Mutations take the
// caller's transaction so counters and rows change together.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// NewEnrollment is a row to insert.
type NewEnrollment struct {
	StudentID      uuid.UUID
	ClassID        uuid.UUID
	AcademicYear   string
	EnrollmentDate time.Time
	Status         model.EnrollmentStatus
}

// EnrolledInClass returns which of ids already hold a non-deleted
// enrollment in the class for year.
func (r *EnrollmentRepository) EnrolledInClass(ctx context.Context, q DBTX, classID uuid.UUID, year string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := q.Query(ctx,
		`SELECT student_id FROM enrollments
		 WHERE class_id = $1 AND academic_year = $2 AND student_id = ANY($3) AND NOT is_deleted`,
		classID, year, ids)
	if err != nil {
		return nil, err
	}
	return collectIDSet(rows)
}

// ActiveElsewhere returns which of ids have an active enrollment in year in
// a class other than classID.
func (r *EnrollmentRepository) ActiveElsewhere(ctx context.Context, q DBTX, classID uuid.UUID, year string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := q.Query(ctx,
		`SELECT student_id FROM enrollments
		 WHERE class_id <> $1 AND academic_year = $2 AND student_id = ANY($3)
		   AND status = 'active' AND NOT is_deleted`,
		classID, year, ids)
	if err != nil {
		return nil, err
	}
	return collectIDSet(rows)
}

// ActiveInClass returns which of ids are actively enrolled in the class.
func (r *EnrollmentRepository) ActiveInClass(ctx context.Context, q DBTX, classID uuid.UUID, year string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := q.Query(ctx,
		`SELECT student_id FROM enrollments
		 WHERE class_id = $1 AND academic_year = $2 AND student_id = ANY($3)
		   AND status = 'active' AND NOT is_deleted`,
		classID, year, ids)
	if err != nil {
		return nil, err
	}
	return collectIDSet(rows)
}

// Insert writes enrollments with a single UNNEST statement. A row that
// collides with a soft-deleted or inactive enrollment of the same student,
// class and year revives it instead of failing.
func (r *EnrollmentRepository) Insert(ctx context.Context, q DBTX, rows []NewEnrollment) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n := len(rows)
	ids := make([]uuid.UUID, n)
	students := make([]uuid.UUID, n)
	classes := make([]uuid.UUID, n)
	years := make([]string, n)
	dates := make([]time.Time, n)
	statuses := make([]string, n)
	for i, e := range rows {
		ids[i] = uuid.New()
		students[i] = e.StudentID
		classes[i] = e.ClassID
		years[i] = e.AcademicYear
		dates[i] = e.EnrollmentDate
		statuses[i] = string(e.Status)
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO enrollments (id, student_id, class_id, academic_year, enrollment_date, status)
		SELECT u.id, u.student_id, u.class_id, u.academic_year, u.enrollment_date, u.status
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::text[],
			$5::date[],
			$6::text[]
		) AS u (id, student_id, class_id, academic_year, enrollment_date, status)
		ON CONFLICT (student_id, class_id, academic_year) DO UPDATE
		SET status = EXCLUDED.status,
		    enrollment_date = EXCLUDED.enrollment_date,
		    status_reason = NULL,
		    is_deleted = FALSE,
		    updated_at = NOW()`,
		ids, students, classes, years, dates, statuses)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

// ActiveStudentsOfTenant returns distinct students with an active
// enrollment in year in any class of the tenant.
func (r *EnrollmentRepository) ActiveStudentsOfTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, year string) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT e.student_id
		 FROM enrollments e
		 JOIN classes c ON c.id = e.class_id
		 WHERE c.tenant_id = $1 AND e.academic_year = $2 AND e.status = 'active' AND NOT e.is_deleted
		 ORDER BY e.student_id`, tenantID, year)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// CompleteForTenant closes the active year enrollments of students within
// the tenant's classes.
func (r *EnrollmentRepository) CompleteForTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, year string, ids []uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE enrollments e
		 SET status = 'completed', updated_at = NOW()
		 FROM classes c
		 WHERE c.id = e.class_id AND c.tenant_id = $1
		   AND e.academic_year = $2 AND e.student_id = ANY($3)
		   AND e.status = 'active' AND NOT e.is_deleted`, tenantID, year, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TenantClassIDs lists the tenant's class ids for a year.
func (r *EnrollmentRepository) TenantClassIDs(ctx context.Context, q DBTX, tenantID uuid.UUID, year string) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT id FROM classes WHERE tenant_id = $1 AND academic_year = $2 AND NOT is_deleted`, tenantID, year)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// SetStatus changes the status of non-deleted enrollments and returns the
// classes touched.
func (r *EnrollmentRepository) SetStatus(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, status model.EnrollmentStatus) (int, []uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`UPDATE enrollments SET status = $2, updated_at = NOW()
		 WHERE id = ANY($1) AND NOT is_deleted
		 RETURNING class_id`, ids, string(status))
	if err != nil {
		return 0, nil, err
	}
	return collectClassIDs(rows)
}

// MarkTransferred closes the students' active enrollments in a class.
func (r *EnrollmentRepository) MarkTransferred(ctx context.Context, tx pgx.Tx, classID uuid.UUID, year string, ids []uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE enrollments SET status = 'transferred', updated_at = NOW()
		 WHERE class_id = $1 AND academic_year = $2 AND student_id = ANY($3)
		   AND status = 'active' AND NOT is_deleted`, classID, year, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Withdraw withdraws the students' active enrollments for year.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, year, reason string) (int, []uuid.UUID, error) {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	rows, err := tx.Query(ctx,
		`UPDATE enrollments SET status = 'withdrawn', status_reason = $3, updated_at = NOW()
		 WHERE student_id = ANY($1) AND academic_year = $2 AND status = 'active' AND NOT is_deleted
		 RETURNING class_id`, ids, year, reasonArg)
	if err != nil {
		return 0, nil, err
	}
	return collectClassIDs(rows)
}

// SoftDelete flags enrollments as deleted.
func (r *EnrollmentRepository) SoftDelete(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int, []uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`UPDATE enrollments SET is_deleted = TRUE, status = 'deleted', updated_at = NOW()
		 WHERE id = ANY($1) AND NOT is_deleted
		 RETURNING class_id`, ids)
	if err != nil {
		return 0, nil, err
	}
	return collectClassIDs(rows)
}

// Statistics aggregates enrollments of a tenant, optionally for one year.
func (r *EnrollmentRepository) Statistics(ctx context.Context, tenantID uuid.UUID, year *string) (*model.EnrollmentStatistics, error) {
	st := &model.EnrollmentStatistics{
		GradeDistribution:        map[int]int{},
		AcademicYearDistribution: map[string]int{},
	}
	const scope = `FROM enrollments e JOIN classes c ON c.id = e.class_id
		WHERE c.tenant_id = $1 AND NOT e.is_deleted AND ($2::text IS NULL OR e.academic_year = $2::text)`

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE e.status = 'active'),
		       COUNT(*) FILTER (WHERE e.status = 'completed'),
		       COUNT(*) FILTER (WHERE e.status = 'transferred'),
		       COUNT(*) FILTER (WHERE e.status = 'withdrawn'),
		       COUNT(DISTINCT e.student_id),
		       COUNT(DISTINCT e.class_id) `+scope, tenantID, year,
	).Scan(&st.TotalEnrollments, &st.ActiveEnrollments, &st.CompletedEnrollments,
		&st.TransferredEnrollments, &st.WithdrawnEnrollments, &st.UniqueStudents, &st.UniqueClasses)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT c.grade_level, COUNT(*) `+scope+` AND e.status = 'active' GROUP BY c.grade_level`, tenantID, year)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var grade, n int
		if err := rows.Scan(&grade, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.GradeDistribution[grade] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT e.academic_year, COUNT(*) `+scope+` GROUP BY e.academic_year`, tenantID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var y string
		var n int
		if err := rows.Scan(&y, &n); err != nil {
			return nil, err
		}
		st.AcademicYearDistribution[y] = n
	}
	return st, rows.Err()
}

func collectClassIDs(rows pgx.Rows) (int, []uuid.UUID, error) {
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return 0, nil, mapPgError(err)
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	var classes []uuid.UUID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			classes = append(classes, id)
		}
	}
	return len(ids), classes, nil
}

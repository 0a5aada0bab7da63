package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// InTenant returns which of ids are non-deleted students of tenantID.
func (r *StudentRepository) InTenant(ctx context.Context, q DBTX, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := q.Query(ctx,
		`SELECT id FROM students WHERE tenant_id = $1 AND id = ANY($2) AND NOT is_deleted`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	return collectIDSet(rows)
}

// UnenrolledByGrade lists active students of a grade with no active
// enrollment in year, in a stable name order.
func (r *StudentRepository) UnenrolledByGrade(ctx context.Context, q DBTX, tenantID uuid.UUID, grade int, year string) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT s.id FROM students s
		 WHERE s.tenant_id = $1 AND s.grade_level = $2 AND s.status = 'active' AND NOT s.is_deleted
		   AND NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.student_id = s.id AND e.academic_year = $3 AND e.status = 'active' AND NOT e.is_deleted
		   )
		 ORDER BY s.last_name, s.first_name, s.id`, tenantID, grade, year)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Promote moves students one grade up into newYear.
func (r *StudentRepository) Promote(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, newYear string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx,
		`UPDATE students
		 SET grade_level = grade_level + 1, academic_year = $2, updated_at = NOW()
		 WHERE id = ANY($1)`, ids, newYear)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountActive returns the number of active students of a tenant.
func (r *StudentRepository) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM students WHERE tenant_id = $1 AND status = 'active' AND NOT is_deleted`,
		tenantID).Scan(&n)
	return n, err
}

// InsertMany bulk-loads students with COPY.
func (r *StudentRepository) InsertMany(ctx context.Context, students []model.Student) (int64, error) {
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"students"},
		[]string{"id", "tenant_id", "student_code", "first_name", "last_name", "grade_level", "academic_year", "status"},
		pgx.CopyFromSlice(len(students), func(i int) ([]any, error) {
			s := students[i]
			return []any{s.ID, s.TenantID, s.StudentCode, s.FirstName, s.LastName, s.GradeLevel, s.AcademicYear, s.Status}, nil
		}),
	)
	return n, mapPgError(err)
}

func collectIDSet(rows pgx.Rows) (map[uuid.UUID]bool, error) {
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

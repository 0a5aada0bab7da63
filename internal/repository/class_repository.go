package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// ClassRepository handles class data access.
type ClassRepository struct {
	pool *pgxpool.Pool
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

const classColumns = `id, tenant_id, class_name, grade_level, section, academic_year,
	maximum_students, current_students, classroom, is_active, created_at, updated_at`

func scanClass(row pgx.Row) (*model.Class, error) {
	c := &model.Class{}
	err := row.Scan(&c.ID, &c.TenantID, &c.ClassName, &c.GradeLevel, &c.Section, &c.AcademicYear,
		&c.MaximumStudents, &c.CurrentStudents, &c.Classroom, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return c, nil
}

func scanClasses(rows pgx.Rows) ([]model.Class, error) {
	defer rows.Close()
	var classes []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

// GetByID retrieves a non-deleted class by its ID.
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error) {
	return scanClass(r.pool.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1 AND NOT is_deleted`, id))
}

// LockByID reads a class and holds its row lock until tx ends, serializing
// concurrent capacity checks on the same class.
func (r *ClassRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Class, error) {
	return scanClass(tx.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id))
}

// LockMany locks the given classes of one tenant and year, in id order to
// avoid deadlocks between concurrent bulk operations.
func (r *ClassRepository) LockMany(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, year string, ids []uuid.UUID) ([]model.Class, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+classColumns+` FROM classes
		 WHERE id = ANY($1) AND tenant_id = $2 AND academic_year = $3 AND is_active AND NOT is_deleted
		 ORDER BY id FOR UPDATE`, ids, tenantID, year)
	if err != nil {
		return nil, err
	}
	return scanClasses(rows)
}

// LockOpenClasses locks the tenant's active classes for a year that still
// have free seats, optionally limited to one grade.
func (r *ClassRepository) LockOpenClasses(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, year string, grade *int) ([]model.Class, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+classColumns+` FROM classes
		 WHERE tenant_id = $1 AND academic_year = $2 AND is_active AND NOT is_deleted
		   AND current_students < maximum_students
		   AND ($3::int IS NULL OR grade_level = $3::int)
		 ORDER BY id FOR UPDATE`, tenantID, year, grade)
	if err != nil {
		return nil, err
	}
	return scanClasses(rows)
}

// InsertMany bulk-loads classes with COPY.
func (r *ClassRepository) InsertMany(ctx context.Context, classes []model.Class) (int64, error) {
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"classes"},
		[]string{"id", "tenant_id", "class_name", "grade_level", "section", "academic_year", "maximum_students", "classroom"},
		pgx.CopyFromSlice(len(classes), func(i int) ([]any, error) {
			c := classes[i]
			return []any{c.ID, c.TenantID, c.ClassName, c.GradeLevel, c.Section, c.AcademicYear, c.MaximumStudents, c.Classroom}, nil
		}),
	)
	return n, mapPgError(err)
}

// AddStudents increments current_students by n only if the result stays
// within maximum_students. It reports false when the guard rejected it.
func (r *ClassRepository) AddStudents(ctx context.Context, tx pgx.Tx, id uuid.UUID, n int) (*model.ClassCapacity, bool, error) {
	cc := &model.ClassCapacity{ClassID: id}
	err := tx.QueryRow(ctx,
		`UPDATE classes
		 SET current_students = current_students + $2, updated_at = NOW()
		 WHERE id = $1 AND current_students + $2 <= maximum_students
		 RETURNING maximum_students, current_students`, id, n,
	).Scan(&cc.MaximumStudents, &cc.CurrentStudents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cc, true, nil
}

// RecomputeCounts sets current_students from active enrollments for the
// given classes and returns how many counters changed.
func (r *ClassRepository) RecomputeCounts(ctx context.Context, q DBTX, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE classes c
		SET current_students = sub.cnt, updated_at = NOW()
		FROM (
			SELECT c2.id,
			       COUNT(e.id) FILTER (WHERE e.status = 'active' AND NOT e.is_deleted) AS cnt
			FROM classes c2
			LEFT JOIN enrollments e ON e.class_id = c2.id
			WHERE c2.id = ANY($1)
			GROUP BY c2.id
		) AS sub
		WHERE c.id = sub.id AND c.current_students <> sub.cnt`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Reconcile recomputes current_students for every class matching the
// optional tenant and year filters.
func (r *ClassRepository) Reconcile(ctx context.Context, q DBTX, tenantID *uuid.UUID, year *string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE classes c
		SET current_students = sub.cnt, updated_at = NOW()
		FROM (
			SELECT c2.id,
			       COUNT(e.id) FILTER (WHERE e.status = 'active' AND NOT e.is_deleted) AS cnt
			FROM classes c2
			LEFT JOIN enrollments e ON e.class_id = c2.id
			WHERE NOT c2.is_deleted
			  AND ($1::uuid IS NULL OR c2.tenant_id = $1::uuid)
			  AND ($2::text IS NULL OR c2.academic_year = $2::text)
			GROUP BY c2.id
		) AS sub
		WHERE c.id = sub.id AND c.current_students <> sub.cnt`, tenantID, year)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// OverCapacity returns the ids among classes whose counter exceeds the maximum.
func (r *ClassRepository) OverCapacity(ctx context.Context, q DBTX, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT id FROM classes WHERE id = ANY($1) AND current_students > maximum_students ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

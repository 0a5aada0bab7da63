package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// TenantRepository handles tenant data access for bulk uploads.
type TenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

const insertTenantSQL = `
	INSERT INTO tenants (
		id, school_code, school_name, address, phone, email, principal_name,
		annual_tuition, registration_fee, maximum_capacity, current_enrollment,
		total_students, total_teachers, total_staff, school_type, grade_levels,
		established_year, accreditation, language_of_instruction, is_active
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

// Only non-NULL parameters overwrite stored values.
const updateTenantSQL = `
	UPDATE tenants SET
		school_name             = COALESCE($2, school_name),
		address                 = COALESCE($3, address),
		phone                   = COALESCE($4, phone),
		email                   = COALESCE($5, email),
		principal_name          = COALESCE($6, principal_name),
		annual_tuition          = COALESCE($7, annual_tuition),
		registration_fee        = COALESCE($8, registration_fee),
		maximum_capacity        = COALESCE($9, maximum_capacity),
		current_enrollment      = COALESCE($10, current_enrollment),
		total_students          = COALESCE($11, total_students),
		total_teachers          = COALESCE($12, total_teachers),
		total_staff             = COALESCE($13, total_staff),
		school_type             = COALESCE($14, school_type),
		established_year        = COALESCE($15, established_year),
		accreditation           = COALESCE($16, accreditation),
		language_of_instruction = COALESCE($17, language_of_instruction),
		updated_at              = NOW()
	WHERE school_code = $1 AND is_active AND NOT is_deleted`

func insertArgs(t *model.Tenant) []any {
	return []any{
		t.ID, t.SchoolCode, t.SchoolName, t.Address, t.Phone, t.Email, t.PrincipalName,
		t.AnnualTuition, t.RegistrationFee, t.MaximumCapacity, t.CurrentEnrollment,
		t.TotalStudents, t.TotalTeachers, t.TotalStaff, t.SchoolType, t.GradeLevels,
		t.EstablishedYear, t.Accreditation, t.LanguageOfInstruction, t.IsActive,
	}
}

func updateArgs(r *model.TenantRow) []any {
	return []any{
		r.SchoolCode, r.SchoolName, r.Address, r.Phone, r.Email, r.PrincipalName,
		r.AnnualTuition, r.RegistrationFee, r.MaximumCapacity, r.CurrentEnrollment,
		r.TotalStudents, r.TotalTeachers, r.TotalStaff, r.SchoolType,
		r.EstablishedYear, r.Accreditation, r.LanguageOfInstruction,
	}
}

// ExistingCodes returns which of codes are already taken by any tenant.
func (r *TenantRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	return r.codeSet(ctx, `SELECT school_code FROM tenants WHERE school_code = ANY($1)`, codes)
}

// ActiveCodes returns which of codes belong to active, non-deleted tenants.
func (r *TenantRepository) ActiveCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	return r.codeSet(ctx,
		`SELECT school_code FROM tenants WHERE school_code = ANY($1) AND is_active AND NOT is_deleted`, codes)
}

func (r *TenantRepository) codeSet(ctx context.Context, query string, codes []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, query, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]bool, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		set[code] = true
	}
	return set, rows.Err()
}

// InsertBatch inserts all tenants in one transaction. Any failure rolls the
// whole batch back.
func (r *TenantRepository) InsertBatch(ctx context.Context, tenants []*model.Tenant) error {
	if len(tenants) == 0 {
		return nil
	}
	return InTx(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, t := range tenants {
			b.Queue(insertTenantSQL, insertArgs(t)...)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// InsertOne inserts a single tenant.
func (r *TenantRepository) InsertOne(ctx context.Context, t *model.Tenant) error {
	_, err := r.pool.Exec(ctx, insertTenantSQL, insertArgs(t)...)
	return mapPgError(err)
}

// UpdateBatch applies all row updates in one transaction and returns the
// codes that matched no active tenant.
func (r *TenantRepository) UpdateBatch(ctx context.Context, rows []model.TenantRow) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var missing []string
	err := InTx(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for i := range rows {
			b.Queue(updateTenantSQL, updateArgs(&rows[i])...)
		}
		br := tx.SendBatch(ctx, b)
		for i := range rows {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			if tag.RowsAffected() == 0 {
				missing = append(missing, rows[i].SchoolCode)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// UpdateOne applies a single row update and reports whether a tenant matched.
func (r *TenantRepository) UpdateOne(ctx context.Context, row *model.TenantRow) (bool, error) {
	tag, err := r.pool.Exec(ctx, updateTenantSQL, updateArgs(row)...)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// LockByID takes the tenant row lock for the rest of tx. Operations that
// rewrite a whole tenant's enrollments serialize on it.
func (r *TenantRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM tenants WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id).Scan(&locked)
	return mapPgError(err)
}

// ReconcileEnrollment recomputes tenants.current_enrollment from active
// enrollments. A nil tenantID covers every tenant.
func (r *TenantRepository) ReconcileEnrollment(ctx context.Context, q DBTX, tenantID *uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE tenants t
		SET current_enrollment = sub.cnt, updated_at = NOW()
		FROM (
			SELECT t2.id,
			       COUNT(DISTINCT e.student_id) FILTER (WHERE e.status = 'active' AND NOT e.is_deleted) AS cnt
			FROM tenants t2
			LEFT JOIN classes c ON c.tenant_id = t2.id AND NOT c.is_deleted
			LEFT JOIN enrollments e ON e.class_id = c.id
			WHERE ($1::uuid IS NULL OR t2.id = $1::uuid)
			GROUP BY t2.id
		) AS sub
		WHERE t.id = sub.id AND t.current_enrollment <> sub.cnt`, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

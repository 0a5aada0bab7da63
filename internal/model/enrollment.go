package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus enumerates the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive      EnrollmentStatus = "active"
	EnrollmentCompleted   EnrollmentStatus = "completed"
	EnrollmentTransferred EnrollmentStatus = "transferred"
	EnrollmentWithdrawn   EnrollmentStatus = "withdrawn"
	EnrollmentDeleted     EnrollmentStatus = "deleted"
)

// Enrollment links a student to a class for one academic year.
type Enrollment struct {
	ID             uuid.UUID        `json:"id"`
	StudentID      uuid.UUID        `json:"student_id"`
	ClassID        uuid.UUID        `json:"class_id"`
	EnrollmentDate time.Time        `json:"enrollment_date"`
	AcademicYear   string           `json:"academic_year"`
	Status         EnrollmentStatus `json:"status"`
	StatusReason   *string          `json:"status_reason,omitempty"`
	IsDeleted      bool             `json:"is_deleted"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// EnrollmentRow is one validated row of an enrollment bulk upload.
type EnrollmentRow struct {
	RowNumber      int              `json:"row_number"`
	StudentID      uuid.UUID        `json:"student_id"`
	ClassID        uuid.UUID        `json:"class_id"`
	AcademicYear   string           `json:"academic_year" binding:"required,academic_year"`
	EnrollmentDate *time.Time       `json:"enrollment_date,omitempty"`
	Status         EnrollmentStatus `json:"status,omitempty" binding:"omitempty,oneof=active completed transferred withdrawn"`
}

// ─── Requests ───────────────────────────────────────────────────────

// BulkEnrollRequest enrolls many students into one class.
type BulkEnrollRequest struct {
	ClassID      uuid.UUID   `json:"class_id" binding:"required"`
	StudentIDs   []uuid.UUID `json:"student_ids" binding:"required,min=1,max=1000"`
	AcademicYear string      `json:"academic_year" binding:"required,academic_year"`
}

// RolloverRequest promotes a tenant's active enrollments to a new academic year.
type RolloverRequest struct {
	CurrentYear string    `json:"current_year" binding:"required,academic_year"`
	NewYear     string    `json:"new_year" binding:"required,academic_year,nefield=CurrentYear"`
	TenantID    uuid.UUID `json:"tenant_id" binding:"required"`
}

// BulkStatusUpdateRequest changes the status of many enrollments.
type BulkStatusUpdateRequest struct {
	EnrollmentIDs []uuid.UUID      `json:"enrollment_ids" binding:"required,min=1,max=1000"`
	Status        EnrollmentStatus `json:"status" binding:"required,oneof=active completed transferred withdrawn"`
}

// BulkTransferRequest moves students between two classes.
type BulkTransferRequest struct {
	StudentIDs   []uuid.UUID `json:"student_ids" binding:"required,min=1,max=1000"`
	FromClassID  uuid.UUID   `json:"from_class_id" binding:"required"`
	ToClassID    uuid.UUID   `json:"to_class_id" binding:"required"`
	AcademicYear string      `json:"academic_year" binding:"required,academic_year"`
}

// BulkWithdrawRequest withdraws students from their active enrollments.
type BulkWithdrawRequest struct {
	StudentIDs   []uuid.UUID `json:"student_ids" binding:"required,min=1,max=1000"`
	AcademicYear string      `json:"academic_year" binding:"required,academic_year"`
	Reason       string      `json:"reason" binding:"omitempty,max=200"`
}

// BulkDeleteRequest soft-deletes enrollments.
type BulkDeleteRequest struct {
	EnrollmentIDs []uuid.UUID `json:"enrollment_ids" binding:"required,min=1,max=1000"`
}

// EnrollByGradeRequest spreads unenrolled students of a grade across classes.
type EnrollByGradeRequest struct {
	GradeLevel     int         `json:"grade_level" binding:"gte=0,lte=20"`
	TargetClassIDs []uuid.UUID `json:"target_class_ids" binding:"required,min=1"`
	AcademicYear   string      `json:"academic_year" binding:"required,academic_year"`
	TenantID       uuid.UUID   `json:"tenant_id" binding:"required"`
}

// AutoAssignRequest fills classes with free seats from unenrolled students.
type AutoAssignRequest struct {
	TenantID     uuid.UUID `json:"tenant_id" binding:"required"`
	AcademicYear string    `json:"academic_year" binding:"required,academic_year"`
	GradeLevel   *int      `json:"grade_level" binding:"omitempty,gte=0,lte=20"`
}

// ─── Results ────────────────────────────────────────────────────────

// EnrollmentOutcome is the per-student result of a bulk enrollment.
type EnrollmentOutcome struct {
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason,omitempty"`
}

// BulkEnrollResult is returned by a bulk enrollment.
type BulkEnrollResult struct {
	SuccessfulEnrollments int                 `json:"successful_enrollments"`
	FailedEnrollments     int                 `json:"failed_enrollments"`
	Successful            []EnrollmentOutcome `json:"successful"`
	Failed                []EnrollmentOutcome `json:"failed"`
	ClassCapacityAfter    string              `json:"class_capacity_after"`
}

// RolloverResult is returned by an academic-year rollover.
type RolloverResult struct {
	PromotedStudents     int       `json:"promoted_students"`
	CompletedEnrollments int       `json:"completed_enrollments"`
	PreviousAcademicYear string    `json:"previous_academic_year"`
	NewAcademicYear      string    `json:"new_academic_year"`
	TenantID             uuid.UUID `json:"tenant_id"`
}

// TransferResult is returned by a bulk transfer.
type TransferResult struct {
	TransferredStudents int         `json:"transferred_students"`
	Skipped             []uuid.UUID `json:"skipped"`
	FromClassID         uuid.UUID   `json:"from_class_id"`
	ToClassID           uuid.UUID   `json:"to_class_id"`
	AcademicYear        string      `json:"academic_year"`
}

// AssignmentResult is returned by enroll-by-grade and auto-assign.
type AssignmentResult struct {
	AssignedStudents int    `json:"assigned_students"`
	TotalUnenrolled  int    `json:"total_unenrolled"`
	UnassignedCount  int    `json:"unassigned_students"`
	AcademicYear     string `json:"academic_year"`
}

// EnrollmentStatistics summarizes enrollments for a tenant.
type EnrollmentStatistics struct {
	TotalEnrollments         int            `json:"total_enrollments"`
	ActiveEnrollments        int            `json:"active_enrollments"`
	CompletedEnrollments     int            `json:"completed_enrollments"`
	TransferredEnrollments   int            `json:"transferred_enrollments"`
	WithdrawnEnrollments     int            `json:"withdrawn_enrollments"`
	UniqueStudents           int            `json:"unique_students"`
	UniqueClasses            int            `json:"unique_classes"`
	EnrollmentRate           float64        `json:"enrollment_rate"`
	GradeDistribution        map[int]int    `json:"grade_distribution"`
	AcademicYearDistribution map[string]int `json:"academic_year_distribution"`
}

// BulkUpdateResult is returned by bulk status changes, withdrawals and deletes.
type BulkUpdateResult struct {
	UpdatedCount    int `json:"updated_count"`
	AffectedClasses int `json:"affected_classes"`
}

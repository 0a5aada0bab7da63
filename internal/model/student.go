package model

import (
	"time"

	"github.com/google/uuid"
)

// Student is the subset of the student record the bulk pipeline touches.
type Student struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	StudentCode  string    `json:"student_code"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	GradeLevel   int       `json:"grade_level"`
	AcademicYear string    `json:"academic_year"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

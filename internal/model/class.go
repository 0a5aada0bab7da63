package model

import (
	"time"

	"github.com/google/uuid"
)

// Class represents one class section of a tenant for an academic year.
type Class struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	ClassName       string    `json:"class_name"`
	GradeLevel      int       `json:"grade_level"`
	Section         string    `json:"section"`
	AcademicYear    string    `json:"academic_year"`
	MaximumStudents int       `json:"maximum_students"`
	CurrentStudents int       `json:"current_students"`
	Classroom       *string   `json:"classroom,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClassCapacity is the occupancy view of a class.
type ClassCapacity struct {
	ClassID         uuid.UUID `json:"class_id"`
	MaximumStudents int       `json:"maximum_students"`
	CurrentStudents int       `json:"current_students"`
	AvailableSpots  int       `json:"available_spots"`
}

// ReconcileResult reports how many denormalized counters were corrected.
type ReconcileResult struct {
	ClassesUpdated int `json:"classes_updated"`
	TenantsUpdated int `json:"tenants_updated"`
}

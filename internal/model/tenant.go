package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one school in the multi-tenant deployment.
type Tenant struct {
	ID                    uuid.UUID `json:"id"`
	SchoolCode            string    `json:"school_code"`
	SchoolName            string    `json:"school_name"`
	Address               string    `json:"address"`
	Phone                 string    `json:"phone"`
	Email                 string    `json:"email"`
	PrincipalName         string    `json:"principal_name"`
	AnnualTuition         float64   `json:"annual_tuition"`
	RegistrationFee       float64   `json:"registration_fee"`
	MaximumCapacity       int       `json:"maximum_capacity"`
	CurrentEnrollment     int       `json:"current_enrollment"`
	TotalStudents         int       `json:"total_students"`
	TotalTeachers         int       `json:"total_teachers"`
	TotalStaff            int       `json:"total_staff"`
	SchoolType            string    `json:"school_type"`
	GradeLevels           []string  `json:"grade_levels"`
	EstablishedYear       int       `json:"established_year"`
	Accreditation         string    `json:"accreditation"`
	LanguageOfInstruction string    `json:"language_of_instruction"`
	IsActive              bool      `json:"is_active"`
	IsDeleted             bool      `json:"is_deleted"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultGradeLevels is assigned to tenants created without explicit grade levels.
var DefaultGradeLevels = []string{"K", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

// TenantRow is one validated row of a tenant bulk upload. Optional columns
// are pointers: nil means the cell was empty and must not overwrite anything.
type TenantRow struct {
	RowNumber             int      `json:"row_number"`
	SchoolCode            string   `json:"school_code" binding:"required,max=10"`
	SchoolName            *string  `json:"school_name,omitempty" binding:"omitempty,max=200"`
	Address               *string  `json:"address,omitempty" binding:"omitempty,max=500"`
	Phone                 *string  `json:"phone,omitempty" binding:"omitempty,max=20"`
	Email                 *string  `json:"email,omitempty" binding:"omitempty,email,max=100"`
	PrincipalName         *string  `json:"principal_name,omitempty" binding:"omitempty,max=100"`
	AnnualTuition         *float64 `json:"annual_tuition,omitempty" binding:"omitempty,gte=0,lt=10000000000"`
	RegistrationFee       *float64 `json:"registration_fee,omitempty" binding:"omitempty,gte=0,lt=10000000000"`
	MaximumCapacity       *int     `json:"maximum_capacity,omitempty" binding:"omitempty,gte=0,lte=2147483647"`
	CurrentEnrollment     *int     `json:"current_enrollment,omitempty" binding:"omitempty,gte=0,lte=2147483647"`
	TotalStudents         *int     `json:"total_students,omitempty" binding:"omitempty,gte=0,lte=2147483647"`
	TotalTeachers         *int     `json:"total_teachers,omitempty" binding:"omitempty,gte=0,lte=2147483647"`
	TotalStaff            *int     `json:"total_staff,omitempty" binding:"omitempty,gte=0,lte=2147483647"`
	SchoolType            *string  `json:"school_type,omitempty" binding:"omitempty,max=20"`
	EstablishedYear       *int     `json:"established_year,omitempty" binding:"omitempty,gte=1800,lte=2100"`
	Accreditation         *string  `json:"accreditation,omitempty" binding:"omitempty,max=50"`
	LanguageOfInstruction *string  `json:"language_of_instruction,omitempty" binding:"omitempty,max=20"`
}

// HasUpdates reports whether the row carries at least one column besides school_code.
func (r *TenantRow) HasUpdates() bool {
	return r.SchoolName != nil || r.Address != nil || r.Phone != nil || r.Email != nil ||
		r.PrincipalName != nil || r.AnnualTuition != nil || r.RegistrationFee != nil ||
		r.MaximumCapacity != nil || r.CurrentEnrollment != nil || r.TotalStudents != nil ||
		r.TotalTeachers != nil || r.TotalStaff != nil || r.SchoolType != nil ||
		r.EstablishedYear != nil || r.Accreditation != nil || r.LanguageOfInstruction != nil
}

// NewTenantFromRow builds a tenant for insertion, filling absent columns with
// the defaults used for bulk-created schools.
func NewTenantFromRow(r *TenantRow) *Tenant {
	t := &Tenant{
		ID:                    uuid.New(),
		SchoolCode:            r.SchoolCode,
		SchoolName:            strOr(r.SchoolName, "New School"),
		Address:               strOr(r.Address, "Address Not Provided"),
		Phone:                 strOr(r.Phone, "+1-555-0000"),
		Email:                 strOr(r.Email, r.SchoolCode+"@example.com"),
		PrincipalName:         strOr(r.PrincipalName, "Principal Name Not Provided"),
		AnnualTuition:         floatOr(r.AnnualTuition, 10000),
		RegistrationFee:       floatOr(r.RegistrationFee, 500),
		MaximumCapacity:       intOr(r.MaximumCapacity, 1000),
		CurrentEnrollment:     intOr(r.CurrentEnrollment, 0),
		TotalStudents:         intOr(r.TotalStudents, 0),
		TotalTeachers:         intOr(r.TotalTeachers, 0),
		TotalStaff:            intOr(r.TotalStaff, 10),
		SchoolType:            strOr(r.SchoolType, "K-12"),
		GradeLevels:           append([]string(nil), DefaultGradeLevels...),
		EstablishedYear:       intOr(r.EstablishedYear, 2020),
		Accreditation:         strOr(r.Accreditation, "Not Specified"),
		LanguageOfInstruction: strOr(r.LanguageOfInstruction, "English"),
		IsActive:              true,
	}
	return t
}

func strOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func floatOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

package importer

import (
	"fmt"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// TenantRequiredColumns are the columns a tenant upload must carry.
var TenantRequiredColumns = []string{"school_code"}

// ParseTenantRows converts records into tenant rows. Every failing record
// produces exactly one error and never affects its neighbours.
func ParseTenantRows(t *Table) ([]model.TenantRow, []model.RowError) {
	valid := make([]model.TenantRow, 0, len(t.Records))
	var errs []model.RowError

	for _, rec := range t.Records {
		row, rerr := parseTenant(rec)
		if rerr != nil {
			errs = append(errs, *rerr)
			continue
		}
		valid = append(valid, row)
	}
	return valid, errs
}

func parseTenant(rec Record) (model.TenantRow, *model.RowError) {
	if e := extraCellsError(rec); e != nil {
		return model.TenantRow{}, e
	}

	code, ok := rec.Get("school_code")
	if !ok {
		re := rowError(rec, "school_code", "Missing school_code")
		return model.TenantRow{}, &re
	}

	c := &cells{rec: rec}
	row := model.TenantRow{
		RowNumber:             rec.Number,
		SchoolCode:            code,
		SchoolName:            c.str("school_name"),
		Address:               c.str("address"),
		Phone:                 c.str("phone"),
		Email:                 c.str("email"),
		PrincipalName:         c.str("principal_name"),
		AnnualTuition:         c.float("annual_tuition"),
		RegistrationFee:       c.float("registration_fee"),
		MaximumCapacity:       c.integer("maximum_capacity"),
		CurrentEnrollment:     c.integer("current_enrollment"),
		TotalStudents:         c.integer("total_students"),
		TotalTeachers:         c.integer("total_teachers"),
		TotalStaff:            c.integer("total_staff"),
		SchoolType:            c.str("school_type"),
		EstablishedYear:       c.integer("established_year"),
		Accreditation:         c.str("accreditation"),
		LanguageOfInstruction: c.str("language_of_instruction"),
	}
	if c.err != "" {
		re := rowError(rec, c.field, c.err)
		return model.TenantRow{}, &re
	}
	if e := structError(rec, &row); e != nil {
		return model.TenantRow{}, e
	}
	if row.MaximumCapacity != nil && row.CurrentEnrollment != nil && *row.CurrentEnrollment > *row.MaximumCapacity {
		re := rowError(rec, "current_enrollment", fmt.Sprintf(
			"current_enrollment (%d) cannot exceed maximum_capacity (%d)",
			*row.CurrentEnrollment, *row.MaximumCapacity))
		return model.TenantRow{}, &re
	}
	return row, nil
}

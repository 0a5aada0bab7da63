package importer

import (
	"github.com/schoolhub/bulkops-backend/internal/model"
)

// EnrollmentRequiredColumns are the columns an enrollment upload must carry.
var EnrollmentRequiredColumns = []string{"student_id", "class_id", "academic_year"}

// ParseEnrollmentRows converts records into enrollment rows.
func ParseEnrollmentRows(t *Table) ([]model.EnrollmentRow, []model.RowError) {
	valid := make([]model.EnrollmentRow, 0, len(t.Records))
	var errs []model.RowError

	for _, rec := range t.Records {
		row, rerr := parseEnrollment(rec)
		if rerr != nil {
			errs = append(errs, *rerr)
			continue
		}
		valid = append(valid, row)
	}
	return valid, errs
}

func parseEnrollment(rec Record) (model.EnrollmentRow, *model.RowError) {
	if e := extraCellsError(rec); e != nil {
		return model.EnrollmentRow{}, e
	}
	for _, col := range EnrollmentRequiredColumns {
		if _, ok := rec.Get(col); !ok {
			re := rowError(rec, col, "Missing "+col)
			return model.EnrollmentRow{}, &re
		}
	}

	c := &cells{rec: rec}
	year, _ := rec.Get("academic_year")
	row := model.EnrollmentRow{
		RowNumber:      rec.Number,
		StudentID:      c.uuid("student_id"),
		ClassID:        c.uuid("class_id"),
		AcademicYear:   year,
		EnrollmentDate: c.date("enrollment_date"),
	}
	if s := c.str("status"); s != nil {
		row.Status = model.EnrollmentStatus(*s)
	}
	if c.err != "" {
		re := rowError(rec, c.field, c.err)
		return model.EnrollmentRow{}, &re
	}
	if e := structError(rec, &row); e != nil {
		return model.EnrollmentRow{}, e
	}
	if row.Status == "" {
		row.Status = model.EnrollmentActive
	}
	return row, nil
}

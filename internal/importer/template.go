package importer

import (
	"bytes"
	"encoding/csv"
)

// TemplateFilename is the attachment name of the tenant upload template.
const TemplateFilename = "tenant_bulk_template.csv"

// TemplateColumns is the column order of the tenant upload template.
var TemplateColumns = []string{
	"school_code", "school_name", "address", "phone", "email", "principal_name",
	"annual_tuition", "registration_fee", "maximum_capacity", "current_enrollment",
	"total_students", "total_teachers", "school_type", "established_year",
	"accreditation", "language_of_instruction",
}

var templateRows = [][]string{
	{"SCH2025021", "Greenwood Elementary School", "123 Oak Street, Springfield, IL 62701", "+1-217-555-0101",
		"info@greenwood.edu", "Dr. Sarah Johnson", "8500.00", "250.00", "600", "450", "450", "32",
		"Elementary", "1995", "State Accredited", "English"},
	{"SCH2025022", "Riverside Middle School", "456 River Road, Portland, OR 97201", "+1-503-555-0202",
		"contact@riverside.edu", "Mr. Michael Chen", "9200.00", "300.00", "800", "720", "720", "45",
		"Middle School", "1988", "Regional Accredited", "English"},
	{"SCH2025023", "Summit High School", "789 Summit Avenue, Denver, CO 80202", "+1-303-555-0303",
		"admin@summit.edu", "Ms. Emily Rodriguez", "12000.00", "500.00", "1200", "1050", "1050", "78",
		"High School", "1972", "National Accredited", "English"},
}

// Template renders the tenant upload template as CSV.
func Template() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(TemplateColumns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(templateRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

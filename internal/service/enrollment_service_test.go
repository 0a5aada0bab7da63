package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// fakeGroups stands in for the per-group transaction. Groups containing a
// student in conflicts fail with a unique violation, and groups for a class
// in broken fail outright.
type fakeGroups struct {
	conflicts map[uuid.UUID]bool
	broken    map[uuid.UUID]bool
	stored    []uuid.UUID
	calls     [][]int
}

func (f *fakeGroups) importGroup(_ context.Context, k classYear, group []model.EnrollmentRow) (int, []model.RowError, error) {
	rowNumbers := make([]int, len(group))
	for i, row := range group {
		rowNumbers[i] = row.RowNumber
	}
	f.calls = append(f.calls, rowNumbers)

	if f.broken[k.classID] {
		return 0, nil, errors.New("connection reset")
	}
	for _, row := range group {
		if f.conflicts[row.StudentID] {
			return 0, nil, &repository.DuplicateError{Constraint: "enrollments_student_id_class_id_academic_year_key"}
		}
	}
	for _, row := range group {
		f.stored = append(f.stored, row.StudentID)
	}
	return len(group), nil, nil
}

func newTestEnrollmentService() *EnrollmentService {
	return &EnrollmentService{log: zerolog.Nop()}
}

func enrollmentRow(n int, student, class uuid.UUID) model.EnrollmentRow {
	return model.EnrollmentRow{
		RowNumber:    n,
		StudentID:    student,
		ClassID:      class,
		AcademicYear: "2024-2025",
		Status:       model.EnrollmentActive,
	}
}

func TestScreenStudents_Reasons(t *testing.T) {
	missing, enrolledID, elsewhereID, both, fresh := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	inTenant := map[uuid.UUID]bool{enrolledID: true, elsewhereID: true, both: true, fresh: true}
	enrolled := map[uuid.UUID]bool{enrolledID: true, both: true}
	elsewhere := map[uuid.UUID]bool{elsewhereID: true, both: true}

	accepted, failed := screenStudents([]uuid.UUID{missing, enrolledID, elsewhereID, both, fresh}, inTenant, enrolled, elsewhere)

	assert.Equal(t, []uuid.UUID{fresh}, accepted)
	assert.Equal(t, []model.EnrollmentOutcome{
		{StudentID: missing, Reason: "Student not found"},
		{StudentID: enrolledID, Reason: "Already enrolled"},
		{StudentID: elsewhereID, Reason: "Active enrollment in another class"},
		{StudentID: both, Reason: "Already enrolled"},
	}, failed)
}

func TestScreenGroup_RejectsActiveRowsOverCapacity(t *testing.T) {
	class := uuid.New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	group := []model.EnrollmentRow{
		enrollmentRow(2, a, class),
		enrollmentRow(3, b, class),
		enrollmentRow(4, c, class),
		enrollmentRow(5, d, class),
	}
	group[3].Status = model.EnrollmentCompleted
	inTenant := map[uuid.UUID]bool{a: true, b: true, c: true, d: true}

	active, accepted, errs := screenGroup(group, inTenant, nil, nil, 2)

	assert.Empty(t, active)
	require.Len(t, accepted, 1)
	assert.Equal(t, d, accepted[0].StudentID)
	require.Len(t, errs, 3)
	for i, e := range errs {
		assert.Equal(t, i+2, e.RowNumber)
		assert.Equal(t, "Class capacity exceeded. Available: 2, Requested: 3", e.Error)
	}
}

func TestScreenGroup_FitsAndFilters(t *testing.T) {
	class := uuid.New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	group := []model.EnrollmentRow{
		enrollmentRow(2, a, class),
		enrollmentRow(3, b, class),
		enrollmentRow(4, c, class),
		enrollmentRow(5, d, class),
	}
	group[3].Status = model.EnrollmentWithdrawn
	inTenant := map[uuid.UUID]bool{a: true, b: true, c: true, d: true}
	enrolled := map[uuid.UUID]bool{b: true}
	elsewhere := map[uuid.UUID]bool{c: true, d: true}

	active, accepted, errs := screenGroup(group, inTenant, enrolled, elsewhere, 1)

	require.Len(t, active, 1)
	assert.Equal(t, a, active[0].StudentID)
	require.Len(t, accepted, 2)
	assert.Equal(t, a, accepted[0].StudentID)
	// Only an active row is blocked by an enrollment elsewhere.
	assert.Equal(t, d, accepted[1].StudentID)
	require.Len(t, errs, 2)
	assert.Equal(t, model.RowError{RowNumber: 3, Key: b.String(), Error: "Already enrolled"}, errs[0])
	assert.Equal(t, model.RowError{RowNumber: 4, Key: c.String(), Error: "Active enrollment in another class"}, errs[1])
}

func TestImportEnrollments_DropsDuplicateStudentInUpload(t *testing.T) {
	svc := newTestEnrollmentService()
	groups := &fakeGroups{}
	classA, classB := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()
	rows := []model.EnrollmentRow{
		enrollmentRow(2, a, classA),
		enrollmentRow(3, b, classA),
		enrollmentRow(4, a, classB),
	}
	var last tracker.Progress
	res, err := svc.importRows(context.Background(), rows, func(p tracker.Progress) { last = p }, groups.importGroup)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].RowNumber)
	assert.Equal(t, "Duplicate student for this academic year in upload", res.Errors[0].Error)
	assert.Equal(t, [][]int{{2, 3}}, groups.calls)
	assert.Equal(t, tracker.Progress{Processed: 3, Successful: 2, Failed: 1}, last)
}

func TestImportEnrollments_SameStudentOtherYearIsKept(t *testing.T) {
	svc := newTestEnrollmentService()
	groups := &fakeGroups{}
	class := uuid.New()
	a := uuid.New()
	next := enrollmentRow(3, a, class)
	next.AcademicYear = "2025-2026"

	res, err := svc.importRows(context.Background(), []model.EnrollmentRow{enrollmentRow(2, a, class), next}, nil, groups.importGroup)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Zero(t, res.Failed)
	assert.Equal(t, [][]int{{2}, {3}}, groups.calls)
}

func TestImportEnrollments_FallsBackRowByRowOnUniqueViolation(t *testing.T) {
	svc := newTestEnrollmentService()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	groups := &fakeGroups{conflicts: map[uuid.UUID]bool{b: true}}
	class := uuid.New()
	rows := []model.EnrollmentRow{
		enrollmentRow(2, a, class),
		enrollmentRow(3, b, class),
		enrollmentRow(4, c, class),
	}

	res, err := svc.importRows(context.Background(), rows, nil, groups.importGroup)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].RowNumber)
	assert.Equal(t, b.String(), res.Errors[0].Key)
	assert.Equal(t, "Enrollment conflicts with an existing enrollment", res.Errors[0].Error)
	assert.Nil(t, res.Errors[0].BatchStart)
	assert.Equal(t, [][]int{{2, 3, 4}, {2}, {3}, {4}}, groups.calls)
	assert.ElementsMatch(t, []uuid.UUID{a, c}, groups.stored)
}

func TestImportEnrollments_GroupFailureReportsBatchRange(t *testing.T) {
	svc := newTestEnrollmentService()
	bad, good := uuid.New(), uuid.New()
	groups := &fakeGroups{broken: map[uuid.UUID]bool{bad: true}}
	rows := []model.EnrollmentRow{
		enrollmentRow(2, uuid.New(), bad),
		enrollmentRow(3, uuid.New(), good),
		enrollmentRow(4, uuid.New(), bad),
	}

	res, err := svc.importRows(context.Background(), rows, nil, groups.importGroup)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 1)
	require.NotNil(t, res.Errors[0].BatchStart)
	require.NotNil(t, res.Errors[0].BatchEnd)
	assert.Equal(t, 2, *res.Errors[0].BatchStart)
	assert.Equal(t, 4, *res.Errors[0].BatchEnd)
	assert.Contains(t, res.Errors[0].Error, "Batch processing failed")
}

func TestImportEnrollments_CancelledContext(t *testing.T) {
	svc := newTestEnrollmentService()
	groups := &fakeGroups{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.importRows(ctx, []model.EnrollmentRow{enrollmentRow(2, uuid.New(), uuid.New())}, nil, groups.importGroup)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, groups.calls)
}

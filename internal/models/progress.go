package models

import "time"

// ProgressRecord is the aggregated completion state for one student in one
// course. Percent is derived from completed steps and graded assignments and
// is monotonically non-decreasing under normal operation. GraduationDate is
// set exactly once, the first time percent reaches 100, and never cleared.
type ProgressRecord struct {
	StudentID          string         `db:"student_id" json:"student_id"`
	CourseID           string         `db:"course_id" json:"course_id"`
	Percent            int            `db:"percent" json:"percent"`
	LearningStatus     LearningStatus `db:"learning_status" json:"learning_status"`
	EducationStartDate time.Time      `db:"education_start_date" json:"education_start_date"`
	GraduationDate     *time.Time     `db:"graduation_date" json:"graduation_date,omitempty"`
	CompletedSteps     []int          `db:"-" json:"completed_steps"`
}

// ProgressTotals are the live work-unit counts the percentage is derived from.
type ProgressTotals struct {
	MaterialCount         int `db:"material_count"`
	AssignmentCount       int `db:"assignment_count"`
	CompletedStepCount    int `db:"completed_step_count"`
	GradedAssignmentCount int `db:"graded_assignment_count"`
}

// Percent computes floor(100 * done / total); 0 when there is no work.
func (t ProgressTotals) Percent() int {
	total := t.MaterialCount + t.AssignmentCount
	if total == 0 {
		return 0
	}
	done := t.CompletedStepCount + t.GradedAssignmentCount
	return 100 * done / total
}

// StudentProgressRow is a group roster row with progress, used by reports.
type StudentProgressRow struct {
	StudentID      string         `db:"student_id" json:"student_id"`
	StudentName    string         `db:"student_name" json:"student_name"`
	Percent        int            `db:"percent" json:"percent"`
	LearningStatus LearningStatus `db:"learning_status" json:"learning_status"`
	GraduationDate *time.Time     `db:"graduation_date" json:"graduation_date,omitempty"`
}

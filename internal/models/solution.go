package models

import "time"

// SolutionStatus is derived from score presence.
type SolutionStatus string

const (
	SolutionStatusSubmitted SolutionStatus = "SUBMITTED"
	SolutionStatusGraded    SolutionStatus = "GRADED"
)

// Solution is one submitted answer to an assignment. Resubmission creates a
// new record; grading always targets a specific solution id.
type Solution struct {
	ID           string         `db:"id" json:"id"`
	AssignmentID string         `db:"assignment_id" json:"assignment_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	SubmittedAt  time.Time      `db:"submitted_at" json:"submitted_at"`
	Comment      string         `db:"comment" json:"comment"`
	Score        *int           `db:"score" json:"score,omitempty"`
	Status       SolutionStatus `db:"status" json:"status"`
	GradedBy     *string        `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt     *time.Time     `db:"graded_at" json:"graded_at,omitempty"`
}

// SolutionDetail enriches Solution with display info for grading screens.
type SolutionDetail struct {
	Solution
	StudentName    string `db:"student_name" json:"student_name"`
	AssignmentName string `db:"assignment_name" json:"assignment_name"`
}

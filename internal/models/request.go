package models

import "time"

// EnrollmentRequest is a student's application to join a course.
// GroupID, when set, must reference a group of the same course; the
// invariant is enforced at assignment time, not stored redundantly.
type EnrollmentRequest struct {
	ID          string        `db:"id" json:"id"`
	StudentID   string        `db:"student_id" json:"student_id"`
	CourseID    string        `db:"course_id" json:"course_id"`
	Status      RequestStatus `db:"status" json:"status"`
	GroupID     *string       `db:"group_id" json:"group_id,omitempty"`
	Comment     *string       `db:"comment" json:"comment,omitempty"`
	ProcessedBy *string       `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

// RequestDetail enriches EnrollmentRequest with display info for the admin screen.
type RequestDetail struct {
	EnrollmentRequest
	StudentName string  `db:"student_name" json:"student_name"`
	CourseName  string  `db:"course_name" json:"course_name"`
	GroupName   *string `db:"group_name" json:"group_name,omitempty"`
}

// RequestFilter provides filters for listing enrollment requests.
type RequestFilter struct {
	StudentID string
	CourseID  string
	GroupID   string
	Status    RequestStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RequestDraft is a client-held overlay of uncommitted edits to one request.
// Nil fields are untouched; RemoveGroup clears the binding explicitly so a
// nil GroupID stays distinguishable from "unassign".
type RequestDraft struct {
	RequestID   string         `json:"request_id"`
	Status      *RequestStatus `json:"status,omitempty"`
	GroupID     *string        `json:"group_id,omitempty"`
	RemoveGroup bool           `json:"remove_group,omitempty"`
	Comment     *string        `json:"comment,omitempty"`
	StagedAt    time.Time      `json:"staged_at"`
}

// Empty reports whether the draft carries no staged change.
func (d RequestDraft) Empty() bool {
	return d.Status == nil && d.GroupID == nil && !d.RemoveGroup && d.Comment == nil
}

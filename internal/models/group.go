package models

import "time"

// Group is a capacity-bounded cohort within a course. The current member
// count is never stored; it is derived from the live request set on read.
type Group struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupUsage pairs a group with its derived occupancy.
type GroupUsage struct {
	Group
	ActiveCount int `db:"active_count" json:"active_count"`
}

// Remaining returns the derived free capacity, never negative.
func (g GroupUsage) Remaining() int {
	remaining := g.Capacity - g.ActiveCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GroupMember is a roster row for the course-management screen.
type GroupMember struct {
	RequestID   string        `db:"request_id" json:"request_id"`
	StudentID   string        `db:"student_id" json:"student_id"`
	StudentName string        `db:"student_name" json:"student_name"`
	Status      RequestStatus `db:"status" json:"status"`
}

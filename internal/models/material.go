package models

import "time"

// CourseMaterial is one unit of course content. Position is the ordinal in
// the step sequence; insertion order is significant.
type CourseMaterial struct {
	ID       string    `db:"id" json:"id"`
	CourseID string    `db:"course_id" json:"course_id"`
	Position int       `db:"position" json:"position"`
	Name     string    `db:"name" json:"name"`
	Body     string    `db:"body" json:"body"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`
}

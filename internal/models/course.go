package models

import "time"

// Course is the aggregate root owning groups, materials and assignments.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseSummary is the short course view shown on student screens.
type CourseSummary struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

package models

import "time"

// Assignment is a gradable task attached to a course.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// AttachedFile references an opaque blob held by the file store. The core
// keeps only the path; content never passes through workflow services.
type AttachedFile struct {
	ID          string    `db:"id" json:"id"`
	AssignmentID string   `db:"assignment_id" json:"assignment_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	Path        string    `db:"path" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// AttachmentDownload is the signed download descriptor returned to clients.
type AttachmentDownload struct {
	FileID    string    `json:"file_id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

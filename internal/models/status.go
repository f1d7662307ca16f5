package models

// RequestStatus represents the lifecycle state of an enrollment request.
type RequestStatus string

// Closed set of enrollment request statuses.
const (
	RequestStatusSubmitted   RequestStatus = "SUBMITTED"
	RequestStatusUnderReview RequestStatus = "UNDER_REVIEW"
	RequestStatusApproved    RequestStatus = "APPROVED"
	RequestStatusRejected    RequestStatus = "REJECTED"
	RequestStatusWithdrawn   RequestStatus = "WITHDRAWN"
)

// Terminal reports whether no further transition may leave this state.
// APPROVED is not terminal: the student may still withdraw.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusWithdrawn
}

// CountsTowardCapacity reports whether a request bound to a group still
// occupies a seat. Rejected and withdrawn requests free their seat.
func (s RequestStatus) CountsTowardCapacity() bool {
	return s != RequestStatusRejected && s != RequestStatusWithdrawn
}

// LearningStatus represents the studying outcome of an approved enrollment.
type LearningStatus string

// Closed set of learning statuses.
const (
	LearningStatusInProgress LearningStatus = "IN_PROGRESS"
	LearningStatusCompleted  LearningStatus = "COMPLETED"
	LearningStatusExpelled   LearningStatus = "EXPELLED"
)

// StatusRef is a reference-data row backing the status catalog.
type StatusRef struct {
	ID       int    `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Position int    `db:"position" json:"position"`
}

// StatusCatalog holds the ordered reference lists loaded once per session.
type StatusCatalog struct {
	RequestStatuses  []StatusRef `json:"request_statuses"`
	LearningStatuses []StatusRef `json:"learning_statuses"`
}

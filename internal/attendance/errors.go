package attendance

import "errors"

// Attendance domain errors
var (
	// Draft validation errors
	ErrPresentExceedsTotal = errors.New("present students cannot exceed total students")
	ErrNegativeCount       = errors.New("student counts cannot be negative")
	ErrNotImage            = errors.New("attachment is not an image")
	ErrImageTooLarge       = errors.New("attachment exceeds the size limit")

	// Workflow state errors
	ErrNotEditing   = errors.New("draft is not being edited")
	ErrNotReviewing = errors.New("no submission is awaiting confirmation")
	ErrBusy         = errors.New("submission in progress")
	ErrClosed       = errors.New("workflow closed")
)

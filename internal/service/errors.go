package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrMemberNotFound     = errors.New("family member not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrFileTooLarge       = errors.New("file exceeds the maximum upload size")
	ErrEmailNotVerified   = errors.New("email address not verified")
)

// PartialCascadeError reports a family member delete that removed some of the
// member's documents but not all of them. The member record is kept so the
// remaining documents never become orphans; retrying the delete resumes with
// what is left.
type PartialCascadeError struct {
	Removed   int
	Remaining int
	Err       error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("removed %d documents but %d remain: %v", e.Removed, e.Remaining, e.Err)
}

func (e *PartialCascadeError) Unwrap() error {
	return e.Err
}

package backend

import (
	"fmt"
)

// AuthError returned by Login when the backend rejects the email
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed, status %d", e.Status)
}

// JobCreationError returned by CreateJob when the backend rejects submission.
// Detail is the backend-provided explanation, if any.
type JobCreationError struct {
	Status int
	Detail string
}

func (e *JobCreationError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return "Failed to create job"
}

// TransientFetchError is a network-level failure of a status fetch
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response to a status fetch
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error %d", e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

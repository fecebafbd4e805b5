package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op classifies the remote call that failed.
type Op string

const (
	OpLookup Op = "lookup"
	OpCreate Op = "create"
	OpDelete Op = "delete"
	OpQuery  Op = "query"
)

// RemoteError is returned for any non-2xx response or transport failure
// from the catalog or source API. Args carries the request parameters of
// the failed call.
type RemoteError struct {
	Op     Op
	Method string
	URL    string
	Status int
	Body   string
	Args   any
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s %s: server returned %d: %s", e.Op, e.Method, e.URL, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// AsRemoteError returns the RemoteError in err's chain, if any.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// AuthenticationError means the catalog rejected the credentials or the
// session conflict could not be cleared.
type AuthenticationError struct {
	User   string
	Status int
	Body   string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed for %q: %v", e.User, e.Err)
	}
	return fmt.Sprintf("authentication failed for %q: server returned %d: %s", e.User, e.Status, e.Body)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsAuthentication reports whether err is an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// JobFailure is returned when a bulk import job ends in the ERROR state.
type JobFailure struct {
	JobID     string
	Payload   json.RawMessage
	Submitted []ImportEntity
}

func (e *JobFailure) Error() string {
	return fmt.Sprintf("import job %s failed: %s", e.JobID, string(e.Payload))
}

// IsJobFailure reports whether err is a JobFailure.
func IsJobFailure(err error) bool {
	var jf *JobFailure
	return errors.As(err, &jf)
}

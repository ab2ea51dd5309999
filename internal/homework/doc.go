// Package homework turns a raw homework_statuses payload into a notification.
//
// Validate checks the payload shape and returns a typed Response. Extract
// looks only at the newest homework and renders the verdict text for its
// status. The set of status codes is closed: anything Verdict does not know is an
// UnrecognizedStatusError, which callers handle separately from schema errors.
package homework

package repository

import "errors"

// ErrNotFound is returned when a lookup by identifier matches nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when inserting a session would violate the
// one-non-terminal-session-per-plate constraint. The partial unique index in
// the database is the second line of defense behind the per-plate lock.
var ErrDuplicateSession = errors.New("duplicate active session for plate")

package database

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error codes for transactions that lost a race and are safe
// to retry.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// IsSerializationFailure reports whether err is a Postgres serialization
// failure or deadlock. Writers map these to conflict errors so callers
// can retry the unit of work.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

package massivepoints

import "errors"

var (
	// ErrOutOfBounds is returned when a point to insert lies outside
	// the entire bound of the tree.
	ErrOutOfBounds = errors.New("point is out of the entire bound")

	// ErrDimensionMismatch is returned when a point or bound does not
	// share the dimension of the entire bound.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSessionFinished is returned when a session is used after
	// Finish.
	ErrSessionFinished = errors.New("session is already finished")

	// ErrSessionPoisoned is returned when a session is used after an
	// update operation failed with a storage error. The backing store
	// may hold a partially applied mutation; begin a fresh session.
	ErrSessionPoisoned = errors.New("session is poisoned by a failed update")

	// ErrReadOnlySession is returned when a mutating operation is
	// invoked on a session that was begun without willUpdate.
	ErrReadOnlySession = errors.New("session is read-only")
)

package checkout

import "errors"

var (
	// ErrNoPendingSession is returned when no open session exists for the
	// requested (tenant, invoice) key.
	ErrNoPendingSession = errors.New("no pending payment session")

	// ErrMissingSnapshot is returned when a session reaches materialization
	// without a pos snapshot. The checkout-initiation collaborator guarantees
	// a snapshot, so hitting this indicates corrupted session state.
	ErrMissingSnapshot = errors.New("payment session has no pos snapshot")

	// ErrSaleConflict is returned when a caller attempts to stamp a sale id
	// onto a session that already carries a different one. Sale ids are
	// written at most once per session.
	ErrSaleConflict = errors.New("session already stamped with a different sale id")

	// ErrStatusConflict is returned when a terminal status update disagrees
	// with the terminal status already recorded on the session.
	ErrStatusConflict = errors.New("session already resolved to a different terminal status")

	// errLostStampRace aborts the materialize transaction when a concurrent
	// caller stamped the session first; the losing sale insert rolls back.
	errLostStampRace = errors.New("lost sale stamp race")
)

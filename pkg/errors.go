package keystore

// errors.go defines the error taxonomy every keystore operation surfaces.
// The core never retries and never logs at error level for expected
// conditions (stale index, duplicate key, uninitialised current slot) — it
// returns one of the sentinels below, wrapped with the failing operation's
// name so callers get useful context from errors.Is/As without parsing
// strings.
//
// © 2025 e2ee-keystore authors. MIT License.

import "fmt"

// Sentinel errors, one per abstract error kind in the keystore's contract.
// Check these with errors.Is, not string comparison.
var (
	// ErrInvalid marks a null/zero-length argument or an HKDF failure
	// caused by malformed input.
	ErrInvalid = fmt.Errorf("keystore: invalid argument")

	// ErrOutOfMemory is the allocation-failure kind of the taxonomy. No
	// operation in this package returns it: Go reports allocation failure
	// by terminating the program, not as an error.
	ErrOutOfMemory = fmt.Errorf("keystore: allocation failed")

	// ErrAlready marks an idempotent rejection: a stale index older than
	// current, or a byte-identical key re-admitted at an existing index.
	// Callers should treat this as "nothing to do", not a failure.
	ErrAlready = fmt.Errorf("keystore: already present or stale")

	// ErrNotFound marks a requested index outside the ratchet window, or a
	// query against an uninitialised current slot.
	ErrNotFound = fmt.Errorf("keystore: not found")

	// ErrFatalInternal marks an HKDF derivation failure during session-key
	// admission or ratcheting; the destination slot is left unoccupied.
	ErrFatalInternal = fmt.Errorf("keystore: derivation failed")
)

// opError wraps a sentinel with the operation that produced it, so log
// lines and error messages carry useful context while errors.Is(err,
// ErrNotFound) etc. keeps working.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return fmt.Sprintf("keystore: %s: %v", e.op, e.err) }
func (e *opError) Unwrap() error { return e.err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

package upscaledb

import "errors"

//goland:noinspection GoUnusedGlobalVariable
var (
	// ErrKeyNotFound is returned by find, erase and cursor moves that run
	// off the end of the tree or target a key that does not exist.
	ErrKeyNotFound = errors.New("upscaledb: key not found")

	// ErrIoFailure wraps a failure surfaced by the page cache or the blob
	// store (§7 IoFailure). The core never distinguishes out-of-memory
	// from other allocator failures; both come back as ErrIoFailure.
	ErrIoFailure = errors.New("upscaledb: i/o failure")

	// ErrCorruption is returned when a page fails a check on read (a
	// self-address or CRC mismatch in Page.ReadPageHeader) and by the
	// page stores when an address holds no page (§6, §7). Node counts and
	// child pointers are not validated on read.
	ErrCorruption = errors.New("upscaledb: data corruption detected")

	// ErrCancelled names the Cancelled case of the error taxonomy (§7).
	// No operation in this module returns it.
	ErrCancelled = errors.New("upscaledb: operation cancelled")

	// ErrInvariantBroken marks an internal consistency check failure that
	// is not attributable to on-disk corruption (e.g. an unknown
	// MoveDirection, or a transaction id the log does not know).
	ErrInvariantBroken = errors.New("upscaledb: invariant broken")

	ErrPageOverflow  = errors.New("upscaledb: node does not fit in one page")
	ErrInvalidOffset = errors.New("upscaledb: invalid slot offset")

	ErrKeyEmpty     = errors.New("upscaledb: key cannot be empty")
	ErrKeyTooLarge  = errors.New("upscaledb: key exceeds maximum size")
	ErrCursorNotSet = errors.New("upscaledb: cursor does not point to a key")

	ErrTxNotWritable = errors.New("upscaledb: transaction is read-only")
	ErrDatabaseClosed = errors.New("upscaledb: database is closed")
)

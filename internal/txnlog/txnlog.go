// Package txnlog implements upscaledb.TransactionLog: a minimal
// write-ahead log around structural page changes, and the commit-time
// free-page queue that gives crash-safety to page release. Grounded on
// the teacher's WAL (SyncMode, byte-threshold fsync) and its FreeList's
// pending-transaction bookkeeping, adapted from MVCC's multi-reader
// release ordering down to a single writer (§5): a page freed by a
// transaction is reusable as soon as that transaction commits, there
// being no older reader that could still be looking at it.
package txnlog

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/taabodim/upscaledb"
)

type record struct {
	addr   upscaledb.PageAddress
	before []byte
	after  []byte
}

// Log is a minimal append-only WAL: LogWrite batches before/after page
// images per transaction, Commit serializes and appends the batch and
// then syncs according to syncMode.
type Log struct {
	mu sync.Mutex

	file *os.File

	syncMode       upscaledb.SyncMode
	bytesPerSync   int
	bytesSinceSync int

	nextTxID uint64
	active   map[uint64][]record

	pending          map[uint64][]upscaledb.PageAddress // txnID -> pages freed at that transaction, not yet releasable
	free             []upscaledb.PageAddress            // pages safe to hand back to the allocator
	preventUpToTxnID uint64                             // 0 = no prevention; set while an older reader might still exist
}

// Open creates or reopens the log file at path.
func Open(path string, syncMode upscaledb.SyncMode, bytesPerSync int) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return &Log{
		file:         f,
		syncMode:     syncMode,
		bytesPerSync: bytesPerSync,
		nextTxID:     1,
		active:       make(map[uint64][]record),
		pending:      make(map[uint64][]upscaledb.PageAddress),
	}, nil
}

// FreePage enqueues addr for release once txID's transaction has
// committed. This engine is single-writer (§5): once Commit(txID) has
// returned, no reader can still be looking at pages that transaction
// freed, so the pending batch moves straight to the free list at commit
// time rather than waiting on the oldest-active-reader watermark the
// teacher's MVCC FreeList tracks.
func (l *Log) FreePage(txID uint64, addr upscaledb.PageAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[txID] = append(l.pending[txID], addr)
}

// Allocate pops a page address safe for reuse, or 0 if none is
// available. Blocked entirely while preventUpToTxnID guards against a
// race with an in-flight release.
func (l *Log) Allocate() upscaledb.PageAddress {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.preventUpToTxnID > 0 {
		for txID, pages := range l.pending {
			if txID <= l.preventUpToTxnID && len(pages) > 0 {
				return 0
			}
		}
	}
	if len(l.free) == 0 {
		return 0
	}
	addr := l.free[len(l.free)-1]
	l.free = l.free[:len(l.free)-1]
	return addr
}

// Begin starts a new transaction and returns its id.
func (l *Log) Begin() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextTxID
	l.nextTxID++
	l.active[id] = nil
	return id, nil
}

// LogWrite records a before/after image of one page's mutation under
// txID; the batch is written to the file on Commit. The B+tree core
// does not call it: Delete uses only Begin, FreePage, Commit and Abort.
func (l *Log) LogWrite(txID uint64, addr upscaledb.PageAddress, before, after []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[txID]; !ok {
		return upscaledb.ErrInvariantBroken
	}
	l.active[txID] = append(l.active[txID], record{
		addr:   addr,
		before: append([]byte(nil), before...),
		after:  append([]byte(nil), after...),
	})
	return nil
}

// Commit serializes txID's batch of records to the log file and syncs
// according to the configured SyncMode.
func (l *Log) Commit(txID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, ok := l.active[txID]
	if !ok {
		return upscaledb.ErrInvariantBroken
	}
	delete(l.active, txID)
	if pages, ok := l.pending[txID]; ok {
		l.free = append(l.free, pages...)
		delete(l.pending, txID)
	}
	if len(recs) == 0 {
		return nil
	}

	buf := encodeBatch(txID, recs)
	n, err := l.file.Write(buf)
	if err != nil {
		return err
	}
	l.bytesSinceSync += n
	return l.maybeSyncLocked()
}

// Abort discards txID's batch without writing it.
func (l *Log) Abort(txID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[txID]; !ok {
		return upscaledb.ErrInvariantBroken
	}
	delete(l.active, txID)
	delete(l.pending, txID)
	return nil
}

func (l *Log) maybeSyncLocked() error {
	switch l.syncMode {
	case upscaledb.SyncOff:
		return nil
	case upscaledb.SyncEveryCommit:
		return l.file.Sync()
	case upscaledb.SyncBytes:
		if l.bytesSinceSync < l.bytesPerSync {
			return nil
		}
		l.bytesSinceSync = 0
		return l.file.Sync()
	default:
		return nil
	}
}

// ForceSync unconditionally fsyncs the log regardless of SyncMode, for
// callers that need a durability checkpoint (e.g. before truncating).
func (l *Log) ForceSync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bytesSinceSync = 0
	return l.file.Sync()
}

// Close syncs and closes the log file.
func (l *Log) Close() error {
	if err := l.ForceSync(); err != nil {
		return err
	}
	return l.file.Close()
}

// batch wire format: txID(8) | recordCount(4) | records...
// each record: addr(8) | beforeLen(4) | afterLen(4) | before | after
func encodeBatch(txID uint64, recs []record) []byte {
	size := 12
	for _, r := range recs {
		size += 16 + len(r.before) + len(r.after)
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint64(buf[0:8], txID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(recs)))
	off := 12
	for _, r := range recs {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r.addr))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(len(r.before)))
		binary.LittleEndian.PutUint32(buf[off+12:off+16], uint32(len(r.after)))
		off += 16
		off += copy(buf[off:], r.before)
		off += copy(buf[off:], r.after)
	}
	return buf
}

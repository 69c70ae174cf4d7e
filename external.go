package upscaledb

// This file defines the seams between the B+tree core and the
// subsystems that own durability, page residency and oversized-key
// storage (§4.F). Concrete implementations live under internal/ and are
// wired together by Open (see btree.go); the core algorithms in this
// package depend only on these interfaces.

// PageCache owns page residency: fetching pages by address, allocating
// fresh ones, and returning freed pages to the allocator. Implemented
// by internal/pagestore.
type PageCache interface {
	Fetch(addr PageAddress) (*Page, error)
	Alloc(typ uint8) (*Page, error)
	Put(p *Page)
	Free(addr PageAddress) error
}

// TransactionLog records structural page changes so a crash mid-erase
// or mid-rebalance can be replayed or rolled back. Implemented by
// internal/txnlog. The B+tree core runs each Delete under one
// Begin/Commit (Abort on error) and frees pages through FreePage; it
// does not call LogWrite, Put does not use the log, and the core does
// not interpret the log itself.
//
// FreePage enqueues a page for release once txID commits rather than
// handing it back to the PageCache immediately: erase frees pages this
// way, never by calling PageCache.Free directly, so a page vacated by a
// merge never becomes reusable until the transaction that vacated it is
// durable. Allocate reports an address the log has already confirmed
// safe to reuse, standing in for the recovery-time rebuild of the free
// list a crash would otherwise require.
type TransactionLog interface {
	Begin() (txID uint64, err error)
	LogWrite(txID uint64, addr PageAddress, before, after []byte) error
	Commit(txID uint64) error
	Abort(txID uint64) error
	FreePage(txID uint64, addr PageAddress)
	Allocate() PageAddress
}

// BlobStore persists oversized keys that don't fit in a slot's inline
// prefix (§4.A). Implemented by internal/blobstore as a page-chained
// store; copies never share storage (put/delete only, no refcounting).
type BlobStore interface {
	Put(data []byte) (id uint64, err error)
	Get(id uint64) ([]byte, error)
	Delete(id uint64) error
}

// ExtendedKeyCache is an optional read-through cache in front of a
// BlobStore, keyed by blob id. Implemented by internal/extkeycache
// using go-freelru. A nil ExtendedKeyCache is valid; resolvers fall
// back to the BlobStore directly.
type ExtendedKeyCache interface {
	Get(id uint64) ([]byte, bool)
	Put(id uint64, data []byte)
	Remove(id uint64)
}

// resolver implements KeyResolver on top of an ExtendedKeyCache (optional)
// and a BlobStore (required for any tree that can hold extended keys).
type resolver struct {
	cache ExtendedKeyCache
	blobs BlobStore
}

func newResolver(cache ExtendedKeyCache, blobs BlobStore) *resolver {
	return &resolver{cache: cache, blobs: blobs}
}

func (r *resolver) ResolveKey(blobID uint64) ([]byte, error) {
	if r.cache != nil {
		if data, ok := r.cache.Get(blobID); ok {
			return data, nil
		}
	}
	if r.blobs == nil {
		return nil, ErrIoFailure
	}
	data, err := r.blobs.Get(blobID)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(blobID, data)
	}
	return data, nil
}

package upscaledb

import (
	"sync"
	"testing"
)

// fakeCache is a minimal in-memory PageCache for exercising the B+tree
// core in tests without pulling in internal/pagestore (which itself
// depends on this package, so it can't be imported from an in-package
// test file without a cycle).
type fakeCache struct {
	mu       sync.Mutex
	pageSize int
	pages    map[PageAddress]*Page
	next     uint64
	free     []PageAddress
}

func newFakeCache(pageSize int) *fakeCache {
	return &fakeCache{pageSize: pageSize, pages: make(map[PageAddress]*Page), next: 1}
}

func (c *fakeCache) Fetch(addr PageAddress) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[addr]
	if !ok {
		return nil, ErrCorruption
	}
	return p, nil
}

func (c *fakeCache) Alloc(typ uint8) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var addr PageAddress
	if n := len(c.free); n > 0 {
		addr = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		addr = PageAddress(c.next)
		c.next++
	}
	p := NewPage(addr, c.pageSize, typ)
	c.pages[addr] = p
	return p, nil
}

func (c *fakeCache) Put(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[p.Addr] = p
	p.Dirty = false
}

func (c *fakeCache) Free(addr PageAddress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, addr)
	c.free = append(c.free, addr)
	return nil
}

// fakeBlobs is a minimal in-memory BlobStore keyed by an incrementing id.
type fakeBlobs struct {
	mu   sync.Mutex
	next uint64
	data map[uint64][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{next: 1, data: make(map[uint64][]byte)}
}

func (b *fakeBlobs) Put(data []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data[id] = cp
	return id, nil
}

func (b *fakeBlobs) Get(id uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return d, nil
}

func (b *fakeBlobs) Delete(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, id)
	return nil
}

// fakeLog is a minimal TransactionLog: none of the erase/insert tests
// exercise crash recovery, but FreePage/Allocate still track pending
// frees per transaction the same way a real log would, so tests can
// observe that Delete only frees pages through it.
type fakeLog struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64][]PageAddress
	free    []PageAddress
}

func (l *fakeLog) Begin() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	return l.next, nil
}
func (l *fakeLog) LogWrite(uint64, PageAddress, []byte, []byte) error { return nil }

func (l *fakeLog) Commit(txID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		l.free = append(l.free, l.pending[txID]...)
		delete(l.pending, txID)
	}
	return nil
}

func (l *fakeLog) Abort(txID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		delete(l.pending, txID)
	}
	return nil
}

func (l *fakeLog) FreePage(txID uint64, addr PageAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		l.pending = make(map[uint64][]PageAddress)
	}
	l.pending[txID] = append(l.pending[txID], addr)
}

func (l *fakeLog) Allocate() PageAddress {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.free) == 0 {
		return 0
	}
	addr := l.free[len(l.free)-1]
	l.free = l.free[:len(l.free)-1]
	return addr
}

// smallTreeOptions keeps trees tiny (MaxKeysPerNode=4) so ordinary
// inserts and deletes exercise splits, merges and shifts without
// needing thousands of keys.
func smallTreeOptions() Options {
	return Options{
		PageSize:       256,
		KeySizeFixed:   16,
		MaxKeysPerNode: 4,
		Logger:         DiscardLogger{},
	}
}

func newTestTree(t *testing.T) (*Tree, *fakeBlobs) {
	t.Helper()
	cache := newFakeCache(256)
	blobs := newFakeBlobs()
	tree, err := Create(cache, &fakeLog{}, blobs, nil, smallTreeOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tree, blobs
}

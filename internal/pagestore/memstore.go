package pagestore

import (
	"sync"

	"github.com/taabodim/upscaledb"
)

// MemStore is an in-memory PageCache with no backing file, used by tests
// and by callers that only need a transient tree (e.g. bulk-building an
// index before serializing it some other way).
type MemStore struct {
	mu       sync.Mutex
	pageSize int
	pages    map[PageAddress]*upscaledb.Page
	nextAddr uint64
	free     []PageAddress
}

// NewMemStore returns an empty MemStore for the given page size.
func NewMemStore(pageSize int) *MemStore {
	return &MemStore{
		pageSize: pageSize,
		pages:    make(map[PageAddress]*upscaledb.Page),
		nextAddr: 1,
	}
}

func (m *MemStore) Fetch(addr PageAddress) (*upscaledb.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[addr]
	if !ok {
		return nil, upscaledb.ErrCorruption
	}
	return p, nil
}

func (m *MemStore) Alloc(typ uint8) (*upscaledb.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var addr PageAddress
	if n := len(m.free); n > 0 {
		addr = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		addr = PageAddress(m.nextAddr)
		m.nextAddr++
	}
	p := upscaledb.NewPage(addr, m.pageSize, typ)
	m.pages[addr] = p
	return p, nil
}

func (m *MemStore) Put(p *upscaledb.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.Addr] = p
	p.Dirty = false
}

func (m *MemStore) Free(addr PageAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, addr)
	m.free = append(m.free, addr)
	return nil
}

// Package pagestore implements upscaledb.PageCache over a memory-mapped
// file, with an LRU of decoded pages sitting in front of it. Unlike the
// teacher's cache, there is exactly one version of each page: this
// engine mutates pages in place under a single writer (§5), so there is
// nothing to version.
package pagestore

import (
	"container/list"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/taabodim/upscaledb"
)

// growthSize is the chunk mmap regions grow by, matching the teacher's
// 1GB-at-a-time remap strategy to keep munmap/mmap calls rare.
const growthSize = 1024 * 1024 * 1024

// entry is one page resident in the LRU.
type entry struct {
	addr PageAddress
	page *upscaledb.Page
	elem *list.Element
}

type PageAddress = upscaledb.PageAddress

// Store is an mmap-backed PageCache. Fetch/Alloc/Put/Free operate under
// a single mutex; the B+tree core already serializes writers (§5), so
// this isn't a concurrency bottleneck in practice.
type Store struct {
	mu sync.Mutex

	file     *os.File
	data     []byte
	pageSize int

	nextAddr uint64
	free     []PageAddress // addresses returned by Free, ready for reuse

	cacheCap int
	cache    map[PageAddress]*entry
	lru      *list.List
}

// Open opens or creates the mmap-backed file at path. A freshly created
// file starts as a 1GB sparse region, matching the teacher's NewMMap.
func Open(path string, pageSize, cacheCap int) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		size = growthSize
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Store{
		file:     f,
		data:     data,
		pageSize: pageSize,
		nextAddr: 1, // address 0 is reserved (§4.D "no neighbor" sentinel)
		cacheCap: cacheCap,
		cache:    make(map[PageAddress]*entry),
		lru:      list.New(),
	}, nil
}

// Fetch returns the decoded page at addr, going to the LRU first and
// then the mmap region on a miss.
func (s *Store) Fetch(addr PageAddress) (*upscaledb.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[addr]; ok {
		s.lru.MoveToFront(e.elem)
		return e.page, nil
	}

	off := int64(addr) * int64(s.pageSize)
	if off < 0 || off+int64(s.pageSize) > int64(len(s.data)) {
		return nil, upscaledb.ErrCorruption
	}
	buf := make([]byte, s.pageSize)
	// Copy out of the mmap region rather than viewing it directly: a
	// concurrent grow-and-remap would otherwise invalidate this slice.
	copy(buf, s.data[off:off+int64(s.pageSize)])
	p := &upscaledb.Page{Addr: addr, Data: buf}
	if err := p.ReadPageHeader(); err != nil {
		return nil, err
	}
	s.insertLocked(addr, p)
	return p, nil
}

// Alloc reserves a fresh address, preferring a freed one, and returns a
// zeroed page of the given type resident in the cache.
func (s *Store) Alloc(typ uint8) (*upscaledb.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var addr PageAddress
	if n := len(s.free); n > 0 {
		addr = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		addr = PageAddress(s.nextAddr)
		s.nextAddr++
	}

	off := int64(addr) * int64(s.pageSize)
	if off+int64(s.pageSize) > int64(len(s.data)) {
		if err := s.growLocked(off + int64(s.pageSize)); err != nil {
			return nil, err
		}
	}

	p := upscaledb.NewPage(addr, s.pageSize, typ)
	p.Dirty = true
	s.insertLocked(addr, p)
	return p, nil
}

// Put marks p resident and, if dirty, flushes it to the mmap region
// immediately (there is no separate write-back scheduler here — the
// mmap region and the LRU's copies converge on every Put).
func (s *Store) Put(p *upscaledb.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[p.Addr]; ok {
		e.page = p
		s.lru.MoveToFront(e.elem)
	} else {
		s.insertLocked(p.Addr, p)
	}
	if p.Dirty {
		s.flushLocked(p)
	}
}

// Free evicts addr from the cache and returns it to the free list for
// reuse by a later Alloc.
func (s *Store) Free(addr PageAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[addr]; ok {
		s.lru.Remove(e.elem)
		delete(s.cache, addr)
	}
	s.free = append(s.free, addr)
	return nil
}

func (s *Store) insertLocked(addr PageAddress, p *upscaledb.Page) {
	e := &entry{addr: addr, page: p}
	e.elem = s.lru.PushFront(e)
	s.cache[addr] = e

	if s.cacheCap <= 0 {
		return
	}
	for len(s.cache) > s.cacheCap {
		back := s.lru.Back()
		if back == nil {
			break
		}
		be := back.Value.(*entry)
		if be.page.Dirty {
			s.flushLocked(be.page)
		}
		s.lru.Remove(back)
		delete(s.cache, be.addr)
	}
}

func (s *Store) flushLocked(p *upscaledb.Page) {
	p.WriteHeader()
	off := int64(p.Addr) * int64(s.pageSize)
	copy(s.data[off:off+int64(s.pageSize)], p.Data)
	p.Dirty = false
}

// growLocked remaps the region at minSize rounded up to the next
// multiple of growthSize, mirroring the teacher's remap-on-grow.
func (s *Store) growLocked(minSize int64) error {
	newSize := ((minSize + growthSize - 1) / growthSize) * growthSize
	if err := unix.Msync(s.data, unix.MS_ASYNC); err != nil {
		return err
	}
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	if err := s.file.Truncate(newSize); err != nil {
		return err
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

// Flush writes every dirty resident page back to the mmap region and
// msyncs it to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.cache {
		if e.page.Dirty {
			s.flushLocked(e.page)
		}
	}
	return unix.Msync(s.data, unix.MS_SYNC)
}

// Close flushes and unmaps the region.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	s.data = nil
	return s.file.Close()
}

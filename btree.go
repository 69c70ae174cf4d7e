package upscaledb

import "sync"

// Tree is the top-level handle to a B+tree: it wires the core
// algorithms (traversal, erase/rebalance, cursors) to the pluggable
// storage seams in external.go. One Tree serves one root; callers
// wanting multiple independent trees over the same page store open one
// Tree per root address (mirrors upscaledb's per-database btree handle).
type Tree struct {
	cache    PageCache
	log      TransactionLog
	blobs    BlobStore
	extCache ExtendedKeyCache
	resolver *resolver
	opts     Options

	mu   sync.Mutex
	root PageAddress

	cursorMu sync.Mutex
	cursors  map[PageAddress][]*Cursor // pages with at least one coupled cursor
}

// Open constructs a Tree over an existing root page. Use Create to
// initialize a brand new, empty tree instead.
func Open(cache PageCache, log TransactionLog, blobs BlobStore, extCache ExtendedKeyCache, root PageAddress, opts Options) *Tree {
	if opts.Logger == nil {
		opts.Logger = DiscardLogger{}
	}
	return &Tree{
		cache:    cache,
		log:      log,
		blobs:    blobs,
		extCache: extCache,
		resolver: newResolver(extCache, blobs),
		opts:     opts,
		root:     root,
		cursors:  make(map[PageAddress][]*Cursor),
	}
}

// Create allocates a fresh, empty root leaf and returns a Tree over it.
func Create(cache PageCache, log TransactionLog, blobs BlobStore, extCache ExtendedKeyCache, opts Options) (*Tree, error) {
	p, err := cache.Alloc(PageTypeBTreeRoot)
	if err != nil {
		return nil, err
	}
	n := ViewNode(p, opts.KeySizeFixed)
	n.InitLeaf()
	cache.Put(p)
	return Open(cache, log, blobs, extCache, p.Addr, opts), nil
}

// Root reports the current root page address.
func (t *Tree) Root() PageAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *Tree) setRoot(addr PageAddress) {
	t.mu.Lock()
	t.root = addr
	t.mu.Unlock()
}

func (t *Tree) node(addr PageAddress) (*Node, error) {
	p, err := t.cache.Fetch(addr)
	if err != nil {
		return nil, err
	}
	return ViewNode(p, t.opts.KeySizeFixed), nil
}

// Get looks up key and returns its record bytes, resolving extended
// keys and external record ids as needed.
func (t *Tree) Get(key []byte) ([]byte, error) {
	leaf, slot, found, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return t.readRecord(leaf, slot)
}

func (t *Tree) readRecord(n *Node, slot int) ([]byte, error) {
	if n.HasInlineRecord(slot) {
		return n.InlineRecordBytes(slot), nil
	}
	if t.blobs == nil {
		return nil, ErrIoFailure
	}
	return t.blobs.Get(n.RecordID(slot))
}

// registerCursor and unregisterCursor maintain the per-page cursor
// index used to invalidate/re-couple cursors across structural changes
// (§4.E).
func (t *Tree) registerCursor(addr PageAddress, c *Cursor) {
	t.cursorMu.Lock()
	t.cursors[addr] = append(t.cursors[addr], c)
	t.cursorMu.Unlock()
}

func (t *Tree) unregisterCursor(addr PageAddress, c *Cursor) {
	t.cursorMu.Lock()
	list := t.cursors[addr]
	for i, cur := range list {
		if cur == c {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(t.cursors, addr)
	} else {
		t.cursors[addr] = list
	}
	t.cursorMu.Unlock()
}

func (t *Tree) cursorsOn(addr PageAddress) []*Cursor {
	t.cursorMu.Lock()
	defer t.cursorMu.Unlock()
	if len(t.cursors[addr]) == 0 {
		return nil
	}
	out := make([]*Cursor, len(t.cursors[addr]))
	copy(out, t.cursors[addr])
	return out
}

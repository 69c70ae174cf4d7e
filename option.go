package upscaledb

// SyncMode controls when dirty pages are fsynced to disk. Mirrors the
// teacher's sync-mode knob; the B+tree core never calls fsync itself, it
// only marks pages dirty (§7) — this is consulted by internal/txnlog,
// which takes it as an argument to txnlog.Open.
type SyncMode int

const (
	// SyncEveryCommit fsyncs after every commit. Zero data loss, higher
	// latency per commit.
	SyncEveryCommit SyncMode = iota

	// SyncBytes fsyncs once at least the configured byte threshold has
	// been written since the last sync.
	SyncBytes

	// SyncOff never fsyncs; only useful for tests and bulk loads that
	// tolerate losing everything since the last checkpoint.
	SyncOff
)

// Options configures a Tree.
type Options struct {
	// PageSize is the fixed page size in bytes (§3). Must match
	// whatever the page store was created with.
	PageSize int

	// KeySizeFixed is the per-tree constant stride reserved for inline
	// key bytes in every slot (§4.A). Keys longer than this become
	// extended keys.
	KeySizeFixed int

	// MaxKeysPerNode bounds slots per page; MinKeys() derives the minimum
	// as MaxKeysPerNode/2 per §3 invariant 1.
	MaxKeysPerNode int

	// ExtendedKeyCacheSize records a capacity for the optional
	// extended-key LRU (§4.F). Open and Create do not read it: the tree
	// uses whatever ExtendedKeyCache the caller passes in (for example one
	// built with extkeycache.New, where capacity 0 disables the cache).
	ExtendedKeyCacheSize uint32

	// CachePages records a resident page count for the page cache. Open
	// and Create do not read it; internal/pagestore takes its own cacheCap
	// argument.
	CachePages int

	// EnableChecksums records whether Murmur3-x86-32 page checksums are
	// wanted (§6). No code in this module reads it: the page stores'
	// flush paths write the header without computing a checksum, and a
	// checksum is stored only by an explicit Page.RecomputeChecksum call.
	EnableChecksums bool

	syncMode  SyncMode
	syncBytes uint

	Logger Logger
}

const (
	DefaultPageSize             = 4096
	DefaultKeySizeFixed         = 32
	DefaultMaxKeysPerNode       = 64
	DefaultExtendedKeyCacheSize = 1024
	DefaultCachePages           = 256
)

// DefaultOptions returns safe defaults sized for a 4KB page and a modest
// working set, matching the teacher's DefaultDBOptions shape.
//
// goland:noinspection GoUnusedExportedFunction
func DefaultOptions() Options {
	return Options{
		PageSize:             DefaultPageSize,
		KeySizeFixed:         DefaultKeySizeFixed,
		MaxKeysPerNode:       DefaultMaxKeysPerNode,
		ExtendedKeyCacheSize: DefaultExtendedKeyCacheSize,
		CachePages:           DefaultCachePages,
		EnableChecksums:      false,
		syncMode:             SyncEveryCommit,
		syncBytes:            1024 * 1024,
		Logger:               DiscardLogger{},
	}
}

// Option configures Options using the functional-options pattern.
type Option func(*Options)

//goland:noinspection GoUnusedExportedFunction
func WithPageSize(n int) Option {
	return func(o *Options) { o.PageSize = n }
}

//goland:noinspection GoUnusedExportedFunction
func WithKeySizeFixed(n int) Option {
	return func(o *Options) { o.KeySizeFixed = n }
}

//goland:noinspection GoUnusedExportedFunction
func WithMaxKeysPerNode(n int) Option {
	return func(o *Options) { o.MaxKeysPerNode = n }
}

//goland:noinspection GoUnusedExportedFunction
func WithExtendedKeyCacheSize(n uint32) Option {
	return func(o *Options) { o.ExtendedKeyCacheSize = n }
}

//goland:noinspection GoUnusedExportedFunction
func WithChecksums(enabled bool) Option {
	return func(o *Options) { o.EnableChecksums = enabled }
}

//goland:noinspection GoUnusedExportedFunction
func WithLogger(l Logger) Option {
	return func(o *Options) { o.Logger = l }
}

//goland:noinspection GoUnusedExportedFunction
func WithSyncOff() Option {
	return func(o *Options) { o.syncMode = SyncOff }
}

// MinKeys computes the minimum slot count for a non-root node under
// these options (§3 invariant 1: min_keys = max_keys / 2).
func (o Options) MinKeys() int {
	return o.MaxKeysPerNode / 2
}

package upscaledb

import (
	"encoding/binary"

	"github.com/taabodim/upscaledb/internal/murmur3"
)

// PageAddress identifies a page. Address 0 is reserved and never denotes a
// live page (§4.D uses 0 as the "no neighbor"/"no anchor" sentinel).
type PageAddress uint64

// Page type tags (§6 header byte).
const (
	PageTypeUnused    uint8 = 0
	PageTypeBTreeRoot uint8 = 1
	PageTypeBTreeNode uint8 = 2
	PageTypeBlob      uint8 = 3
	PageTypeFreelist  uint8 = 4
)

// Page header flag bits (§6 header byte, distinct from the node flags
// byte inside the payload).
const (
	pageFlagChecksummed uint8 = 0x01
)

// PageHeaderSize is the on-disk size of the 24-byte page header (§6):
// self-address(8) + CRC32(4) + type(1) + flags(1) + reserved(10).
const PageHeaderSize = 24

// Page is one fixed-size page: a 24-byte header (unless the page opts
// out via WithoutHeader, e.g. pages owned by another subsystem) followed
// by a payload buffer whose interpretation depends on Type.
type Page struct {
	Addr          PageAddress
	Data          []byte // len == options.PageSize
	WithoutHeader bool
	Type          uint8
	Dirty         bool
}

// NewPage allocates a zeroed page of the given size at addr.
func NewPage(addr PageAddress, size int, typ uint8) *Page {
	return &Page{Addr: addr, Data: make([]byte, size), Type: typ}
}

// Payload returns the mutable region of Data following the header, or
// the whole buffer for header-less pages.
func (p *Page) Payload() []byte {
	if p.WithoutHeader {
		return p.Data
	}
	return p.Data[PageHeaderSize:]
}

// WriteHeader serializes the page header fields into Data[0:PageHeaderSize].
// checksum is computed by the caller (see RecomputeChecksum) so that
// callers can choose whether checksumming is enabled (§6: "under an
// optional flag").
func (p *Page) WriteHeader() {
	if p.WithoutHeader {
		return
	}
	b := p.Data[:PageHeaderSize]
	binary.LittleEndian.PutUint64(b[0:8], uint64(p.Addr))
	binary.LittleEndian.PutUint32(b[8:12], p.readChecksum())
	b[12] = p.Type
	b[13] = p.headerFlags()
	for i := 14; i < PageHeaderSize; i++ {
		b[i] = 0
	}
}

func (p *Page) headerFlags() uint8 {
	if len(p.Data) < PageHeaderSize {
		return 0
	}
	return p.Data[13]
}

func (p *Page) readChecksum() uint32 {
	if len(p.Data) < PageHeaderSize {
		return 0
	}
	return binary.LittleEndian.Uint32(p.Data[8:12])
}

// RecomputeChecksum recomputes and stores Murmur3-x86-32 of the payload,
// seeded with the page's own address (§6). Only meaningful when the
// engine is configured with EnableChecksums.
func (p *Page) RecomputeChecksum() {
	if p.WithoutHeader {
		return
	}
	sum := murmur3.Sum32(p.Payload(), uint32(p.Addr))
	binary.LittleEndian.PutUint32(p.Data[8:12], sum)
	p.Data[13] |= pageFlagChecksummed
}

// VerifyChecksum reports whether the stored checksum (if the page
// carries one) matches the payload. Pages without the checksummed flag
// always verify.
func (p *Page) VerifyChecksum() bool {
	if p.WithoutHeader || p.Data[13]&pageFlagChecksummed == 0 {
		return true
	}
	want := binary.LittleEndian.Uint32(p.Data[8:12])
	got := murmur3.Sum32(p.Payload(), uint32(p.Addr))
	return want == got
}

// ReadPageHeader decodes the header of a freshly loaded page's Data into
// the Page's Addr/Type fields, and validates self-consistency.
func (p *Page) ReadPageHeader() error {
	if p.WithoutHeader {
		return nil
	}
	if len(p.Data) < PageHeaderSize {
		return ErrCorruption
	}
	addr := PageAddress(binary.LittleEndian.Uint64(p.Data[0:8]))
	if addr != p.Addr {
		return ErrCorruption
	}
	p.Type = p.Data[12]
	if !p.VerifyChecksum() {
		return ErrCorruption
	}
	return nil
}

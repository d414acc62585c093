package sdbgo

import "fmt"

// VirtAddr is a 64-bit runtime virtual address inside the inferior's
// address space. It totally orders by its numeric value alone.
type VirtAddr uint64

func (a VirtAddr) Uint64() uint64 { return uint64(a) }

func (a VirtAddr) Add(offset int64) VirtAddr { return VirtAddr(int64(a) + offset) }

func (a VirtAddr) String() string { return fmt.Sprintf("0x%016x", uint64(a)) }

// ToFileAddr converts a to a FileAddr within e, succeeding only if e has
// a load bias set and a is inside one of e's loaded sections. Fails
// closed rather than returning a bare subtraction that might not
// actually correspond to anything in the image.
func (a VirtAddr) ToFileAddr(e *ELF) (FileAddr, bool) {
	if e == nil || !e.hasLoadBias {
		return FileAddr{}, false
	}
	fa := uint64(a) - uint64(e.loadBias)
	if e.SectionContainingFileAddr(fa) == nil {
		return FileAddr{}, false
	}
	return FileAddr{elf: e, addr: fa}, true
}

// FileAddr is a 64-bit address inside one specific, unrelocated ELF
// image. Comparisons and arithmetic against a FileAddr from a different
// ELF are rejected with a recoverable error rather than silently
// producing a meaningless result.
type FileAddr struct {
	elf  *ELF
	addr uint64
}

// NewFileAddr builds a FileAddr for a specific ELF image.
func NewFileAddr(e *ELF, addr uint64) FileAddr { return FileAddr{elf: e, addr: addr} }

func (a FileAddr) ELF() *ELF     { return a.elf }
func (a FileAddr) Addr() uint64  { return a.addr }
func (a FileAddr) IsZero() bool  { return a.elf == nil && a.addr == 0 }

// ToVirtAddr always succeeds: it is the owning ELF's current load bias
// plus this file address, regardless of whether the result lands inside
// a mapped section.
func (a FileAddr) ToVirtAddr() VirtAddr {
	if a.elf == nil {
		return VirtAddr(a.addr)
	}
	return VirtAddr(a.addr + uint64(a.elf.loadBias))
}

func (a FileAddr) Add(offset int64) (FileAddr, error) {
	return FileAddr{elf: a.elf, addr: uint64(int64(a.addr) + offset)}, nil
}

// Compare orders two FileAddrs from the same ELF. It returns an error
// when the two addresses belong to different ELF images, since ordering
// across images is undefined.
func (a FileAddr) Compare(b FileAddr) (int, error) {
	if a.elf != b.elf {
		return 0, newError("compare file addresses", fmt.Errorf("addresses belong to different ELF images"))
	}
	switch {
	case a.addr < b.addr:
		return -1, nil
	case a.addr > b.addr:
		return 1, nil
	default:
		return 0, nil
	}
}

func (a FileAddr) Equal(b FileAddr) bool {
	cmp, err := a.Compare(b)
	return err == nil && cmp == 0
}

func (a FileAddr) String() string { return fmt.Sprintf("0x%016x", a.addr) }

// FileOffset is a byte offset within a specific ELF image's on-disk
// bytes. It is kept as a plain value carrier with no conversion to
// VirtAddr or FileAddr: an on-disk offset and a loaded address are not
// interchangeable without section-specific knowledge this type doesn't
// have.
type FileOffset struct {
	elf *ELF
	off uint64
}

func NewFileOffset(e *ELF, off uint64) FileOffset { return FileOffset{elf: e, off: off} }
func (o FileOffset) ELF() *ELF                    { return o.elf }
func (o FileOffset) Offset() uint64               { return o.off }

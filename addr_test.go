package sdbgo

import "testing"

func TestVirtAddrAdd(t *testing.T) {
	a := VirtAddr(0x1000)
	if got := a.Add(0x10); got != 0x1010 {
		t.Fatalf("Add(0x10) = %s, want 0x1010", got)
	}
	if got := a.Add(-0x10); got != 0x0ff0 {
		t.Fatalf("Add(-0x10) = %s, want 0xff0", got)
	}
}

func TestFileAddrToVirtAddrAlwaysSucceeds(t *testing.T) {
	fa := NewFileAddr(nil, 0x400000)
	if got := fa.ToVirtAddr(); got != VirtAddr(0x400000) {
		t.Fatalf("ToVirtAddr() = %s, want 0x400000 (no elf, no bias)", got)
	}
}

func TestFileAddrCompareRejectsDifferentELFs(t *testing.T) {
	a := NewFileAddr(&ELF{path: "a"}, 0x100)
	b := NewFileAddr(&ELF{path: "b"}, 0x100)
	if _, err := a.Compare(b); err == nil {
		t.Fatalf("Compare across different ELF images must return an error, not an assertion")
	}
	if a.Equal(b) {
		t.Fatalf("addresses from different ELF images are never equal")
	}
}

func TestFileAddrCompareSameELF(t *testing.T) {
	e := &ELF{path: "a"}
	a := NewFileAddr(e, 0x100)
	b := NewFileAddr(e, 0x200)
	cmp, err := a.Compare(b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("Compare(0x100, 0x200) = %d, want negative", cmp)
	}
}

func TestVirtAddrToFileAddrFailsWithoutLoadBias(t *testing.T) {
	e := &ELF{path: "a"}
	if _, ok := VirtAddr(0x400000).ToFileAddr(e); ok {
		t.Fatalf("conversion must fail closed when the ELF has no load bias")
	}
}

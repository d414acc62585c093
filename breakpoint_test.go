package sdbgo

import (
	"bytes"
	"os"
	"testing"
)

// TestSoftwareBreakpointIsTransparent verifies that reading through an
// enabled breakpoint never observes 0xcc, and that enable-then-disable
// restores the inferior's memory byte for byte.
func TestSoftwareBreakpointIsTransparent(t *testing.T) {
	path := "/bin/sleep"
	if _, err := os.Stat(path); err != nil {
		path = "/usr/bin/sleep"
		if _, err := os.Stat(path); err != nil {
			t.Skip("no sleep binary on this system")
		}
	}

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	pc := proc.Registers().PC()

	before, err := proc.ReadMemoryWithoutTraps(pc, 1)
	if err != nil {
		t.Fatalf("ReadMemoryWithoutTraps before breakpoint: %v", err)
	}

	site, err := proc.CreateBreakpointSite(pc, false, false)
	if err != nil {
		t.Fatalf("CreateBreakpointSite: %v", err)
	}
	if err := site.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	installed, err := proc.ReadMemoryWithoutTraps(pc, 1)
	if err != nil {
		t.Fatalf("ReadMemoryWithoutTraps after enable: %v", err)
	}
	if installed[0] != 0xcc {
		t.Fatalf("expected int3 installed at %s, got %#x", pc, installed[0])
	}

	transparent, err := proc.ReadMemory(pc, 1)
	if err != nil {
		t.Fatalf("ReadMemory (transparent): %v", err)
	}
	if !bytes.Equal(transparent, before) {
		t.Fatalf("ReadMemory through an enabled breakpoint returned %#x, want the original byte %#x", transparent[0], before[0])
	}

	if err := site.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	after, err := proc.ReadMemoryWithoutTraps(pc, 1)
	if err != nil {
		t.Fatalf("ReadMemoryWithoutTraps after disable: %v", err)
	}
	if !bytes.Equal(after, before) {
		t.Fatalf("memory after disable = %#x, want original %#x", after[0], before[0])
	}
}

func TestBreakpointEnableIsIdempotent(t *testing.T) {
	path := "/bin/sleep"
	if _, err := os.Stat(path); err != nil {
		t.Skip("no /bin/sleep on this system")
	}
	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	site, err := proc.CreateBreakpointSite(proc.Registers().PC(), false, false)
	if err != nil {
		t.Fatalf("CreateBreakpointSite: %v", err)
	}
	if err := site.Enable(); err != nil {
		t.Fatalf("first Enable: %v", err)
	}
	saved := site.savedByte
	if err := site.Enable(); err != nil {
		t.Fatalf("second Enable should be a no-op, not an error: %v", err)
	}
	if site.savedByte != saved {
		t.Fatalf("idempotent Enable must not re-save the currently-installed 0xcc byte")
	}
}

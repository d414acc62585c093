package sdbgo

import (
	"bytes"
	"os"
	"testing"
)

func findSleepBinary(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"/bin/sleep", "/usr/bin/sleep"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	t.Skip("no sleep binary on this system")
	return ""
}

func TestWatchpointEnableAllocatesHardwareSlotAndCachesInitialValue(t *testing.T) {
	path := findSleepBinary(t)

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	pc := proc.Registers().PC()

	original, err := proc.ReadMemoryWithoutTraps(pc, 4)
	if err != nil {
		t.Fatalf("ReadMemoryWithoutTraps: %v", err)
	}

	wp, err := proc.CreateWatchpoint(pc, WatchReadWrite, 4)
	if err != nil {
		t.Fatalf("CreateWatchpoint: %v", err)
	}
	if wp.IsEnabled() {
		t.Fatalf("newly created watchpoint must start disabled")
	}

	if err := wp.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !wp.IsEnabled() {
		t.Fatalf("Enable must mark the watchpoint enabled")
	}
	if wp.hwSlot < 0 || wp.hwSlot > 3 {
		t.Fatalf("Enable must allocate a debug register slot 0-3, got %d", wp.hwSlot)
	}
	if !bytes.Equal(wp.CurrentValue(), original) {
		t.Fatalf("CurrentValue() = %#x, want the memory read at enable time %#x", wp.CurrentValue(), original)
	}
	if !bytes.Equal(wp.PreviousValue(), original) {
		t.Fatalf("PreviousValue() at enable time should equal CurrentValue()")
	}

	if err := wp.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if wp.IsEnabled() {
		t.Fatalf("Disable must mark the watchpoint disabled")
	}
	if wp.hwSlot != -1 {
		t.Fatalf("Disable must free the hardware slot, hwSlot = %d", wp.hwSlot)
	}
}

func TestWatchpointDisableIsIdempotent(t *testing.T) {
	path := findSleepBinary(t)

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	wp, err := proc.CreateWatchpoint(proc.Registers().PC(), WatchWrite, 1)
	if err != nil {
		t.Fatalf("CreateWatchpoint: %v", err)
	}
	if err := wp.Disable(); err != nil {
		t.Fatalf("Disable on a never-enabled watchpoint should be a no-op: %v", err)
	}

	if err := wp.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	slot := wp.hwSlot
	if err := wp.Disable(); err != nil {
		t.Fatalf("first Disable: %v", err)
	}
	if err := wp.Disable(); err != nil {
		t.Fatalf("second Disable should be a no-op, not an error: %v", err)
	}
	_ = slot
}

func TestWatchpointsOnDistinctAddressesCoexist(t *testing.T) {
	path := findSleepBinary(t)

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	pc := proc.Registers().PC()

	a, err := proc.CreateWatchpoint(pc, WatchReadWrite, 1)
	if err != nil {
		t.Fatalf("CreateWatchpoint a: %v", err)
	}
	b, err := proc.CreateWatchpoint(pc.Add(4), WatchWrite, 1)
	if err != nil {
		t.Fatalf("CreateWatchpoint b: %v", err)
	}

	if err := a.Enable(); err != nil {
		t.Fatalf("Enable a: %v", err)
	}
	defer a.Disable()
	if err := b.Enable(); err != nil {
		t.Fatalf("Enable b: %v", err)
	}
	defer b.Disable()

	if a.hwSlot == b.hwSlot {
		t.Fatalf("distinct watchpoints must not share a hardware slot")
	}

	all := proc.Watchpoints().All()
	if len(all) != 2 {
		t.Fatalf("Watchpoints().All() len = %d, want 2", len(all))
	}
}

func TestUpdateValueRotatesPreviousAndCurrent(t *testing.T) {
	path := findSleepBinary(t)

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	wp, err := proc.CreateWatchpoint(proc.Registers().PC(), WatchReadWrite, 4)
	if err != nil {
		t.Fatalf("CreateWatchpoint: %v", err)
	}
	if err := wp.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer wp.Disable()

	first := wp.CurrentValue()
	if err := wp.UpdateValue(); err != nil {
		t.Fatalf("UpdateValue: %v", err)
	}
	if !bytes.Equal(wp.PreviousValue(), first) {
		t.Fatalf("UpdateValue must rotate the old current value into previous")
	}
}

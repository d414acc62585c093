package sdbgo

import "testing"

type fakeStoppoint struct {
	id      uint64
	addr    VirtAddr
	enabled bool
}

func (f *fakeStoppoint) ID() uint64        { return f.id }
func (f *fakeStoppoint) Address() VirtAddr { return f.addr }
func (f *fakeStoppoint) IsEnabled() bool   { return f.enabled }
func (f *fakeStoppoint) Enable() error     { f.enabled = true; return nil }
func (f *fakeStoppoint) Disable() error    { f.enabled = false; return nil }

func TestStoppointCollectionUniqueID(t *testing.T) {
	c := NewStoppointCollection[*fakeStoppoint](false)
	if err := c.Push(&fakeStoppoint{id: 1, addr: 0x1000}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := c.Push(&fakeStoppoint{id: 1, addr: 0x2000}); err == nil {
		t.Fatalf("expected error pushing duplicate id")
	}
}

func TestStoppointCollectionUniqueAddress(t *testing.T) {
	c := NewStoppointCollection[*fakeStoppoint](true)
	if err := c.Push(&fakeStoppoint{id: 1, addr: 0x1000}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := c.Push(&fakeStoppoint{id: 2, addr: 0x1000}); err == nil {
		t.Fatalf("expected error pushing duplicate address in a unique-address collection")
	}

	nonUnique := NewStoppointCollection[*fakeStoppoint](false)
	if err := nonUnique.Push(&fakeStoppoint{id: 1, addr: 0x1000}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := nonUnique.Push(&fakeStoppoint{id: 2, addr: 0x1000}); err != nil {
		t.Fatalf("watchpoint-style collection should allow shared addresses: %v", err)
	}
}

func TestStoppointCollectionRemoveDisables(t *testing.T) {
	c := NewStoppointCollection[*fakeStoppoint](false)
	sp := &fakeStoppoint{id: 1, addr: 0x1000, enabled: true}
	if err := c.Push(sp); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := c.RemoveByID(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if sp.IsEnabled() {
		t.Fatalf("remove must disable before dropping")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	if err := c.RemoveByID(1); err == nil {
		t.Fatalf("expected error removing an id that no longer exists")
	}
}

func TestStoppointCollectionGetInRange(t *testing.T) {
	c := NewStoppointCollection[*fakeStoppoint](false)
	c.Push(&fakeStoppoint{id: 1, addr: 0x3000})
	c.Push(&fakeStoppoint{id: 2, addr: 0x1000})
	c.Push(&fakeStoppoint{id: 3, addr: 0x2000})
	c.Push(&fakeStoppoint{id: 4, addr: 0x5000})

	got := c.GetInRange(0x1000, 0x3000)
	if len(got) != 3 {
		t.Fatalf("GetInRange returned %d stoppoints, want 3", len(got))
	}
	for i, want := range []VirtAddr{0x1000, 0x2000, 0x3000} {
		if got[i].Address() != want {
			t.Fatalf("GetInRange[%d].Address() = %s, want %s", i, got[i].Address(), want)
		}
	}
}

func TestStoppointCollectionEnabledAtAddress(t *testing.T) {
	c := NewStoppointCollection[*fakeStoppoint](true)
	c.Push(&fakeStoppoint{id: 1, addr: 0x1000, enabled: false})
	if _, ok := c.EnabledStoppointAtAddress(0x1000); ok {
		t.Fatalf("disabled stoppoint should not be returned")
	}
	sp, _ := c.GetByAddress(0x1000)
	sp.Enable()
	if _, ok := c.EnabledStoppointAtAddress(0x1000); !ok {
		t.Fatalf("enabled stoppoint should be returned")
	}
}

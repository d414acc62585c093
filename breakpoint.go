package sdbgo

// BreakpointSite is a single installation point at a virtual address,
// either a software breakpoint (an int3 byte patch with the original
// byte saved for restoration) or a hardware breakpoint (a debug-register
// execute-mode slot).
type BreakpointSite struct {
	id       uint64
	process  *Process
	address  VirtAddr
	hardware bool
	internal bool

	enabled   bool
	savedByte byte
	hwSlot    int
}

func newBreakpointSite(proc *Process, id uint64, addr VirtAddr, hardware, internal bool) *BreakpointSite {
	return &BreakpointSite{
		id:       id,
		process:  proc,
		address:  addr,
		hardware: hardware,
		internal: internal,
		hwSlot:   -1,
	}
}

func (b *BreakpointSite) ID() uint64        { return b.id }
func (b *BreakpointSite) Address() VirtAddr { return b.address }
func (b *BreakpointSite) IsEnabled() bool   { return b.enabled }
func (b *BreakpointSite) IsHardware() bool  { return b.hardware }
func (b *BreakpointSite) IsInternal() bool  { return b.internal }

func (b *BreakpointSite) AtAddress(addr VirtAddr) bool { return b.address == addr }

func (b *BreakpointSite) InRange(low, high VirtAddr) bool {
	return low <= b.address && b.address <= high
}

// Enable is idempotent: enabling an already-enabled site is a no-op.
func (b *BreakpointSite) Enable() error {
	if b.enabled {
		return nil
	}
	if b.hardware {
		slot, err := b.process.allocHardwareSlot(hwModeExecute, 1, b.address)
		if err != nil {
			return err
		}
		b.hwSlot = slot
		b.enabled = true
		return nil
	}

	saved, err := b.process.readMemoryWithoutTraps(b.address, 1)
	if err != nil {
		return wrapf(err, "enable breakpoint site at %s", b.address)
	}
	b.savedByte = saved[0]
	if err := b.process.writeMemoryRaw(b.address, []byte{0xcc}); err != nil {
		return wrapf(err, "enable breakpoint site at %s", b.address)
	}
	b.enabled = true
	return nil
}

// Disable is idempotent: disabling an already-disabled site is a no-op.
func (b *BreakpointSite) Disable() error {
	if !b.enabled {
		return nil
	}
	if b.hardware {
		if err := b.process.freeHardwareSlot(b.hwSlot); err != nil {
			return err
		}
		b.hwSlot = -1
		b.enabled = false
		return nil
	}

	if err := b.process.writeMemoryRaw(b.address, []byte{b.savedByte}); err != nil {
		return wrapf(err, "disable breakpoint site at %s", b.address)
	}
	b.enabled = false
	return nil
}

package sdbgo

import "sort"

// Stoppoint is the common shape of a breakpoint site or a watchpoint:
// something with a unique id, a virtual address, and enable/disable
// semantics that a StoppointCollection can manage generically.
type Stoppoint interface {
	ID() uint64
	Address() VirtAddr
	IsEnabled() bool
	Enable() error
	Disable() error
}

// StoppointCollection is an ordered, id-keyed container generic over one
// stoppoint kind. uniqueAddress rejects a push whose address is already
// occupied; breakpoint sites enforce this (two int3s at the same address
// can't coexist), watchpoints don't (a read watch and a write watch can
// share an address).
type StoppointCollection[T Stoppoint] struct {
	items         []T
	uniqueAddress bool
}

func NewStoppointCollection[T Stoppoint](uniqueAddress bool) *StoppointCollection[T] {
	return &StoppointCollection[T]{uniqueAddress: uniqueAddress}
}

// Push takes ownership of sp. It fails if sp's id is already present, or
// if this collection enforces unique addresses and sp's address is
// already occupied by an enabled-or-not stoppoint.
func (c *StoppointCollection[T]) Push(sp T) error {
	for _, existing := range c.items {
		if existing.ID() == sp.ID() {
			return newError("push stoppoint", errAlreadyExists("id", sp.ID()))
		}
		if c.uniqueAddress && existing.Address() == sp.Address() {
			return newError("push stoppoint", errAddressTaken(sp.Address()))
		}
	}
	c.items = append(c.items, sp)
	return nil
}

// RemoveByID disables and drops the stoppoint with the given id.
func (c *StoppointCollection[T]) RemoveByID(id uint64) error {
	for i, sp := range c.items {
		if sp.ID() == id {
			if err := sp.Disable(); err != nil {
				return err
			}
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return newError("remove stoppoint", errNoSuchID(id))
}

func (c *StoppointCollection[T]) GetByID(id uint64) (T, bool) {
	for _, sp := range c.items {
		if sp.ID() == id {
			return sp, true
		}
	}
	var zero T
	return zero, false
}

// GetByAddress returns the stoppoint at exactly addr, if any.
func (c *StoppointCollection[T]) GetByAddress(addr VirtAddr) (T, bool) {
	for _, sp := range c.items {
		if sp.Address() == addr {
			return sp, true
		}
	}
	var zero T
	return zero, false
}

func (c *StoppointCollection[T]) ContainsAddress(addr VirtAddr) bool {
	_, ok := c.GetByAddress(addr)
	return ok
}

// EnabledStoppointAtAddress returns the enabled stoppoint at addr, if
// any.
func (c *StoppointCollection[T]) EnabledStoppointAtAddress(addr VirtAddr) (T, bool) {
	sp, ok := c.GetByAddress(addr)
	if !ok || !sp.IsEnabled() {
		var zero T
		return zero, false
	}
	return sp, true
}

// GetInRange returns every stoppoint whose address lies in the closed
// interval [low, high], in increasing address order.
func (c *StoppointCollection[T]) GetInRange(low, high VirtAddr) []T {
	var out []T
	for _, sp := range c.items {
		if sp.Address() >= low && sp.Address() <= high {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

func (c *StoppointCollection[T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *StoppointCollection[T]) Len() int { return len(c.items) }

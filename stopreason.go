package sdbgo

import "fmt"

// State is one of the four points in an inferior's lifecycle.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateExited
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TrapReason narrows a SIGTRAP stop into the specific cause the process
// controller attributes it to.
type TrapReason int

const (
	TrapUnknown TrapReason = iota
	TrapSingleStep
	TrapSoftwareBreak
	TrapHardwareBreak
	TrapSyscall
)

func (t TrapReason) String() string {
	switch t {
	case TrapSingleStep:
		return "single_step"
	case TrapSoftwareBreak:
		return "software_break"
	case TrapHardwareBreak:
		return "hardware_break"
	case TrapSyscall:
		return "syscall"
	default:
		return "unknown"
	}
}

// SyscallInfo carries a syscall boundary's details: its id and name,
// whether this is the entry or exit half, and either the argument
// registers (entry) or the return value (exit).
type SyscallInfo struct {
	ID    uint64
	Name  string
	Entry bool
	Args  [6]uint64
	Ret   uint64
}

// StopReason is the fully attributed result of WaitOnSignal.
type StopReason struct {
	State State
	Info  int

	HasTrapReason bool
	TrapReason    TrapReason

	SyscallInfo *SyscallInfo
}

func (r StopReason) String() string {
	switch r.State {
	case StateExited:
		return fmt.Sprintf("exited, status=%d", r.Info)
	case StateTerminated:
		return fmt.Sprintf("terminated, signal=%d", r.Info)
	case StateStopped:
		if r.HasTrapReason {
			if r.TrapReason == TrapSyscall && r.SyscallInfo != nil {
				name := r.SyscallInfo.Name
				if name == "" {
					name = fmt.Sprintf("#%d", r.SyscallInfo.ID)
				}
				return fmt.Sprintf("stopped, signal=%d, trap=%s, syscall=%s", r.Info, r.TrapReason, name)
			}
			return fmt.Sprintf("stopped, signal=%d, trap=%s", r.Info, r.TrapReason)
		}
		return fmt.Sprintf("stopped, signal=%d", r.Info)
	default:
		return "unknown"
	}
}

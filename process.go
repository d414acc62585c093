package sdbgo

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"sdbgo/internal/tracer"
	"sdbgo/registers"
)

// addrNoRandomize is the Linux personality(2) flag ADDR_NO_RANDOMIZE
// (linux/personality.h), which golang.org/x/sys/unix does not wrap.
const addrNoRandomize = 0x0040000

// LaunchOptions controls how Launch starts the inferior. The zero value
// traces the child with no arguments and lets it inherit this process's
// stdout.
type LaunchOptions struct {
	Args   []string
	Stdout *os.File
	// NoTrace launches the target without requesting tracing at all,
	// mirroring sdb::process::launch's debug=false path (rarely useful
	// outside tests that only want a plain child process).
	NoTrace bool
}

// Process is the engine's core: a single traced (or, with
// LaunchOptions.NoTrace, untraced) inferior task, its register shadow,
// its stoppoint collections, and its syscall catch policy.
type Process struct {
	tr *tracer.Tracer

	state          State
	terminateOnEnd bool
	attached       bool

	regs        *RegisterFile
	breakpoints *StoppointCollection[*BreakpointSite]
	watchpoints *StoppointCollection[*Watchpoint]

	syscallPolicy        SyscallCatchPolicy
	expectingSyscallExit bool

	nextStoppointID uint64

	closed bool
}

func newProcess(tr *tracer.Tracer, terminateOnEnd, attached bool) *Process {
	p := &Process{
		tr:             tr,
		terminateOnEnd: terminateOnEnd,
		attached:       attached,
		state:          StateStopped,
		syscallPolicy:  CatchNoSyscalls(),
	}
	p.regs = newRegisterFile(p)
	p.breakpoints = NewStoppointCollection[*BreakpointSite](true)
	p.watchpoints = NewStoppointCollection[*Watchpoint](false)
	return p
}

// Launch forks and execs path, tracing the child by default. The fork
// itself, and the personality(2) call that disables ASLR for the child,
// both run on the tracer's own pinned OS thread: PTRACE_TRACEME binds the
// tracee to whichever thread performed the fork that led to its exec, and
// personality flags set on a thread just before fork are inherited by the
// child and survive its exec.
func Launch(path string, opts LaunchOptions) (*Process, error) {
	argv := append([]string{path}, opts.Args...)
	env := os.Environ()

	stdoutFd := os.Stdout.Fd()
	if opts.Stdout != nil {
		stdoutFd = opts.Stdout.Fd()
	}
	files := []uintptr{os.Stdin.Fd(), stdoutFd, os.Stderr.Fd()}

	trace := !opts.NoTrace
	tr := tracer.NewForLaunch()

	err := tr.Exec(func() (int, error) {
		var oldPersonality uintptr
		if trace {
			old, _, errno := unix.Syscall(unix.SYS_PERSONALITY, 0xffffffff, 0, 0)
			if errno == 0 {
				oldPersonality = old
			}
			unix.Syscall(unix.SYS_PERSONALITY, oldPersonality|addrNoRandomize, 0, 0)
		}

		attr := &syscall.ProcAttr{Env: env, Files: files}
		if trace {
			attr.Sys = &syscall.SysProcAttr{Ptrace: true}
		}
		pid, execErr := syscall.ForkExec(path, argv, attr)

		if trace {
			unix.Syscall(unix.SYS_PERSONALITY, oldPersonality, 0, 0)
		}
		return pid, execErr
	})
	if err != nil {
		tr.Close()
		return nil, wrapf(err, "launch %s", path)
	}

	proc := newProcess(tr, true, trace)
	if !trace {
		return proc, nil
	}
	if _, err := proc.WaitOnSignal(); err != nil {
		return nil, err
	}
	if err := proc.tr.SetOptions(unix.PTRACE_O_TRACESYSGOOD); err != nil {
		return nil, wrapf(err, "set trace options on pid %d", proc.Pid())
	}
	return proc, nil
}

// Attach starts tracing an already-running process.
func Attach(pid int) (*Process, error) {
	if pid == 0 {
		return nil, newError("attach", fmt.Errorf("invalid pid 0"))
	}
	tr := tracer.New(pid)
	if err := tr.Attach(); err != nil {
		tr.Close()
		return nil, wrapf(err, "attach to pid %d", pid)
	}
	proc := newProcess(tr, false, true)
	if _, err := proc.WaitOnSignal(); err != nil {
		return nil, err
	}
	if err := proc.tr.SetOptions(unix.PTRACE_O_TRACESYSGOOD); err != nil {
		return nil, wrapf(err, "set trace options on pid %d", pid)
	}
	return proc, nil
}

func (p *Process) Pid() int    { return p.tr.Pid() }
func (p *Process) State() State { return p.state }

func (p *Process) Registers() *RegisterFile                              { return p.regs }
func (p *Process) BreakpointSites() *StoppointCollection[*BreakpointSite] { return p.breakpoints }
func (p *Process) Watchpoints() *StoppointCollection[*Watchpoint]        { return p.watchpoints }

func (p *Process) SetSyscallCatchPolicy(policy SyscallCatchPolicy) { p.syscallPolicy = policy }

// Close is the destructor: it best-effort stops, detaches, and (if this
// process owns the inferior's lifetime) kills and reaps it. Idempotent.
func (p *Process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.state == StateExited || p.state == StateTerminated {
		p.tr.Close()
		return nil
	}
	if p.state == StateRunning {
		unix.Kill(p.Pid(), unix.SIGSTOP)
		p.waitRaw()
	}
	p.tr.Detach()
	unix.Kill(p.Pid(), unix.SIGCONT)
	if p.terminateOnEnd {
		unix.Kill(p.Pid(), unix.SIGKILL)
		p.waitRaw()
	}
	p.tr.Close()
	return nil
}

func (p *Process) nextID() uint64 {
	p.nextStoppointID++
	return p.nextStoppointID
}

func (p *Process) CreateBreakpointSite(addr VirtAddr, hardware, internal bool) (*BreakpointSite, error) {
	site := newBreakpointSite(p, p.nextID(), addr, hardware, internal)
	if err := p.breakpoints.Push(site); err != nil {
		return nil, err
	}
	return site, nil
}

func (p *Process) CreateWatchpoint(addr VirtAddr, mode WatchMode, size int) (*Watchpoint, error) {
	wp := newWatchpoint(p, p.nextID(), addr, mode, size)
	if err := p.watchpoints.Push(wp); err != nil {
		return nil, err
	}
	return wp, nil
}

// waitRaw reaps one wait status and updates state and (on a stop) the
// register shadow, with no stop-reason attribution. Used both by
// WaitOnSignal and internally by the step-over-breakpoint sequence in
// Resume, which performs a blocking wait of its own without publishing a
// stop reason to the caller.
func (p *Process) waitRaw() (unix.WaitStatus, error) {
	ws, err := p.tr.Wait()
	if err != nil {
		return ws, wrapf(err, "wait for pid %d", p.Pid())
	}
	switch {
	case ws.Exited():
		p.state = StateExited
	case ws.Signaled():
		p.state = StateTerminated
	case ws.Stopped():
		p.state = StateStopped
		if err := p.regs.refresh(); err != nil {
			return ws, err
		}
	}
	return ws, nil
}

// Resume steps over an enabled software breakpoint at the current PC (so
// the trapped instruction actually executes), then continues the
// inferior, using the syscall-trap continuation when the catch policy
// wants syscall boundaries reported.
func (p *Process) Resume() error {
	pc := p.regs.PC()
	if bp, ok := p.breakpoints.EnabledStoppointAtAddress(pc); ok && !bp.IsHardware() {
		if err := bp.Disable(); err != nil {
			return err
		}
		if err := p.tr.SingleStep(); err != nil {
			return wrapf(err, "step over breakpoint at %s", pc)
		}
		if _, err := p.waitRaw(); err != nil {
			return err
		}
		if p.state != StateStopped {
			return nil
		}
		if err := bp.Enable(); err != nil {
			return err
		}
	}

	var err error
	if p.syscallPolicy.Mode() != CatchNone {
		err = p.tr.Syscall(0)
	} else {
		err = p.tr.Cont(0)
	}
	if err != nil {
		return wrapf(err, "resume pid %d", p.Pid())
	}
	p.state = StateRunning
	return nil
}

// WaitOnSignal is the public path for observing a stop: it reaps a status,
// attributes it to a StopReason, rewinds PC past a software breakpoint's
// int3, and transparently resumes past syscall stops the catch policy
// doesn't want and past internal breakpoints.
func (p *Process) WaitOnSignal() (StopReason, error) {
	ws, err := p.waitRaw()
	if err != nil {
		return StopReason{}, err
	}

	var reason StopReason
	switch {
	case ws.Exited():
		reason.State = StateExited
		reason.Info = ws.ExitStatus()
		return reason, nil

	case ws.Signaled():
		reason.State = StateTerminated
		reason.Info = int(ws.Signal())
		return reason, nil

	case ws.Stopped():
		reason.State = StateStopped
		sig := ws.StopSignal()

		if sig == unix.SIGTRAP || sig == unix.SIGTRAP|0x80 {
			// PTRACE_O_TRACESYSGOOD ORs 0x80 into a syscall-boundary
			// stop's signal so it's distinguishable from a plain trap;
			// report it to callers as the SIGTRAP it actually is.
			reason.Info = int(unix.SIGTRAP)

			if sig == unix.SIGTRAP {
				pc := p.regs.PC()
				if bp, ok := p.breakpoints.EnabledStoppointAtAddress(pc.Add(-1)); ok && !bp.IsHardware() {
					if err := p.regs.SetPC(pc.Add(-1)); err != nil {
						return reason, err
					}
				}
			}

			if err := p.augmentStopReason(&reason); err != nil {
				return reason, err
			}
		} else {
			reason.Info = int(sig)
		}

		if reason.SyscallInfo != nil && !p.syscallPolicy.Wants(int(reason.SyscallInfo.ID)) {
			if err := p.Resume(); err != nil {
				return reason, err
			}
			return p.WaitOnSignal()
		}

		if reason.HasTrapReason && reason.TrapReason == TrapSoftwareBreak {
			if bp, ok := p.breakpoints.GetByAddress(p.regs.PC()); ok && bp.internal {
				if err := p.Resume(); err != nil {
					return reason, err
				}
				return p.WaitOnSignal()
			}
		}
		return reason, nil

	default:
		return reason, newError("wait on signal", fmt.Errorf("unrecognized wait status for pid %d", p.Pid()))
	}
}

const (
	siCodeTrapTrace   = 2
	siCodeSyscallStop = int32(unix.SIGTRAP | 0x80)
)

func (p *Process) augmentStopReason(reason *StopReason) error {
	info, err := p.tr.GetSigInfo()
	if err != nil {
		return wrapf(err, "get signal info for pid %d", p.Pid())
	}

	switch info.Code {
	case siCodeTrapTrace:
		reason.HasTrapReason = true
		reason.TrapReason = TrapSingleStep
		return nil

	case siCodeSyscallStop:
		reason.HasTrapReason = true
		reason.TrapReason = TrapSyscall
		return p.fillSyscallInfo(reason)
	}

	pc := p.regs.PC()
	if bp, ok := p.breakpoints.EnabledStoppointAtAddress(pc); ok && !bp.IsHardware() {
		reason.HasTrapReason = true
		reason.TrapReason = TrapSoftwareBreak
		return nil
	}

	dr6Info, _ := registers.ByName("dr6")
	dr6Val, err := p.regs.Read(dr6Info)
	if err != nil {
		return err
	}
	dr6 := registers.ToUint64(dr6Val)
	for i := 0; i < 4; i++ {
		if dr6&(1<<uint(i)) == 0 {
			continue
		}
		if bp := p.hardwareBreakpointAtSlot(i); bp != nil {
			reason.HasTrapReason = true
			reason.TrapReason = TrapHardwareBreak
			return nil
		}
		if wp := p.watchpointAtSlot(i); wp != nil {
			reason.HasTrapReason = true
			reason.TrapReason = TrapHardwareBreak
			return wp.UpdateValue()
		}
	}

	reason.HasTrapReason = true
	reason.TrapReason = TrapUnknown
	return nil
}

func (p *Process) fillSyscallInfo(reason *StopReason) error {
	origRax, err := p.regs.ReadByName("orig_rax")
	if err != nil {
		return err
	}
	id := registers.ToUint64(origRax)
	info := &SyscallInfo{ID: id, Name: SyscallIDToName(int(id))}

	if !p.expectingSyscallExit {
		info.Entry = true
		for i, name := range []string{"rdi", "rsi", "rdx", "r10", "r8", "r9"} {
			v, err := p.regs.ReadByName(name)
			if err != nil {
				return err
			}
			info.Args[i] = registers.ToUint64(v)
		}
		p.expectingSyscallExit = true
	} else {
		rax, err := p.regs.ReadByName("rax")
		if err != nil {
			return err
		}
		info.Ret = registers.ToUint64(rax)
		p.expectingSyscallExit = false
	}

	reason.SyscallInfo = info
	return nil
}

func (p *Process) hardwareBreakpointAtSlot(slot int) *BreakpointSite {
	for _, bp := range p.breakpoints.All() {
		if bp.IsHardware() && bp.hwSlot == slot {
			return bp
		}
	}
	return nil
}

func (p *Process) watchpointAtSlot(slot int) *Watchpoint {
	for _, wp := range p.watchpoints.All() {
		if wp.hwSlot == slot {
			return wp
		}
	}
	return nil
}

// StepInstruction executes exactly one machine instruction, stepping over
// an enabled software breakpoint at the current PC the same way Resume
// does.
func (p *Process) StepInstruction() (StopReason, error) {
	pc := p.regs.PC()
	var toReenable *BreakpointSite
	if bp, ok := p.breakpoints.EnabledStoppointAtAddress(pc); ok && !bp.IsHardware() {
		if err := bp.Disable(); err != nil {
			return StopReason{}, err
		}
		toReenable = bp
	}

	if err := p.tr.SingleStep(); err != nil {
		return StopReason{}, wrapf(err, "single step pid %d", p.Pid())
	}
	p.state = StateRunning

	reason, err := p.WaitOnSignal()
	if toReenable != nil {
		if enableErr := toReenable.Enable(); enableErr != nil && err == nil {
			err = enableErr
		}
	}
	return reason, err
}

func encodeWatchSize(size int) (uint64, error) {
	switch size {
	case 1:
		return 0x0, nil
	case 2:
		return 0x1, nil
	case 8:
		return 0x2, nil
	case 4:
		return 0x3, nil
	default:
		return 0, fmt.Errorf("unsupported watchpoint size %d", size)
	}
}

// allocHardwareSlot first-fits addr into a free DR0..DR3 slot, programs
// its address and DR7 mode/size fields, and returns the slot index.
func (p *Process) allocHardwareSlot(hwMode int, size int, addr VirtAddr) (int, error) {
	sizeBits, err := encodeWatchSize(size)
	if err != nil {
		return -1, newError("allocate hardware slot", err)
	}

	dr7Info, _ := registers.ByName("dr7")
	dr7Val, err := p.regs.Read(dr7Info)
	if err != nil {
		return -1, err
	}
	dr7 := registers.ToUint64(dr7Val)

	slot := -1
	for i := 0; i < 4; i++ {
		if dr7&(1<<uint(i*2)) == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, newError("allocate hardware slot", fmt.Errorf("no free debug register slot"))
	}

	if err := p.regs.WriteByName(fmt.Sprintf("dr%d", slot), registers.Uint64Value(uint64(addr))); err != nil {
		return -1, err
	}

	fieldShift := uint(16 + slot*4)
	dr7 &^= uint64(0xf) << fieldShift
	dr7 |= (uint64(hwMode) | (sizeBits << 2)) << fieldShift
	dr7 |= 1 << uint(slot*2)

	if err := p.regs.Write(dr7Info, registers.Uint64Value(dr7)); err != nil {
		return -1, err
	}
	return slot, nil
}

func (p *Process) freeHardwareSlot(slot int) error {
	dr7Info, _ := registers.ByName("dr7")
	dr7Val, err := p.regs.Read(dr7Info)
	if err != nil {
		return err
	}
	dr7 := registers.ToUint64(dr7Val) &^ (1 << uint(slot*2))
	return p.regs.Write(dr7Info, registers.Uint64Value(dr7))
}

// readMemoryWithoutTraps reads via process_vm_readv, the kernel's
// cross-memory I/O interface, with no software-breakpoint byte
// substitution. Used directly by BreakpointSite.Enable to observe the
// real instruction byte even when a 0xcc may already be installed.
func (p *Process) readMemoryWithoutTraps(addr VirtAddr, n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(n)
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: n}}

	read, err := unix.ProcessVMReadv(p.Pid(), local, remote, 0)
	if err != nil {
		return nil, wrapf(err, "read memory at %s", addr)
	}
	if read != n {
		return nil, newError("read memory", fmt.Errorf("read %d of %d bytes at %s", read, n, addr))
	}
	return buf, nil
}

// ReadMemoryWithoutTraps exposes readMemoryWithoutTraps to callers.
func (p *Process) ReadMemoryWithoutTraps(addr VirtAddr, n int) ([]byte, error) {
	return p.readMemoryWithoutTraps(addr, n)
}

// ReadMemory reads n bytes at addr, substituting back the saved original
// byte for every enabled software breakpoint whose address falls in
// range so callers never observe an installed 0xcc.
func (p *Process) ReadMemory(addr VirtAddr, n int) ([]byte, error) {
	buf, err := p.readMemoryWithoutTraps(addr, n)
	if err != nil {
		return nil, err
	}
	for _, bp := range p.breakpoints.All() {
		if !bp.IsEnabled() || bp.IsHardware() {
			continue
		}
		a := uint64(bp.Address())
		if a >= uint64(addr) && a < uint64(addr)+uint64(n) {
			buf[a-uint64(addr)] = bp.savedByte
		}
	}
	return buf, nil
}

// ReadUint64 is the common case of read_memory_as<T>.
func (p *Process) ReadUint64(addr VirtAddr) (uint64, error) {
	buf, err := p.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// writeMemoryRaw writes data at addr, using PTRACE_POKEDATA read-modify-
// write for any unaligned head/tail word and process_vm_writev for the
// aligned bulk middle.
func (p *Process) writeMemoryRaw(addr VirtAddr, data []byte) error {
	written := 0
	cur := uint64(addr)

	for written < len(data) {
		remaining := data[written:]
		if cur%8 != 0 || len(remaining) < 8 {
			n := 8 - int(cur%8)
			if n > len(remaining) {
				n = len(remaining)
			}
			if err := p.pokePartialWord(VirtAddr(cur), remaining[:n]); err != nil {
				return newError("write memory", fmt.Errorf("wrote %d of %d bytes: %w", written, len(data), err))
			}
			written += n
			cur += uint64(n)
			continue
		}

		bulkLen := (len(remaining) / 8) * 8
		local := []unix.Iovec{{Base: &remaining[0]}}
		local[0].SetLen(bulkLen)
		remote := []unix.RemoteIovec{{Base: uintptr(cur), Len: bulkLen}}
		n, err := unix.ProcessVMWritev(p.Pid(), local, remote, 0)
		written += n
		cur += uint64(n)
		if err != nil {
			return newError("write memory", fmt.Errorf("wrote %d of %d bytes: %w", written, len(data), err))
		}
	}
	return nil
}

func (p *Process) pokePartialWord(addr VirtAddr, data []byte) error {
	base := (uint64(addr) / 8) * 8
	offset := int(uint64(addr) - base)

	word := make([]byte, 8)
	if _, err := p.tr.PeekData(uintptr(base), word); err != nil {
		return err
	}
	copy(word[offset:offset+len(data)], data)
	_, err := p.tr.PokeData(uintptr(base), word)
	return err
}

// WriteMemory writes data at addr with no breakpoint-byte awareness; it
// is the exported form of writeMemoryRaw, which BreakpointSite calls to
// install/restore its patch byte.
func (p *Process) WriteMemory(addr VirtAddr, data []byte) error {
	return p.writeMemoryRaw(addr, data)
}

// GetAuxv reads and decodes /proc/<pid>/auxv.
func (p *Process) GetAuxv() (map[uint64]uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", p.Pid()))
	if err != nil {
		return nil, wrapf(err, "read auxv for pid %d", p.Pid())
	}
	out := map[uint64]uint64{}
	for i := 0; i+16 <= len(data); i += 16 {
		key := binary.LittleEndian.Uint64(data[i : i+8])
		if key == 0 {
			break
		}
		out[key] = binary.LittleEndian.Uint64(data[i+8 : i+16])
	}
	return out, nil
}

// Package tracer serializes every ptrace-family call for one inferior onto
// a single, OS-thread-locked goroutine. Linux ptrace ties a tracee to the
// specific tracer *thread* that attached to it (via PTRACE_TRACEME or
// PTRACE_ATTACH, or that forked it with PTRACE enabled); any other thread's
// ptrace calls on that pid fail with ESRCH. Go's goroutines are not
// pinned to OS threads by default, so every call in this package is
// funneled through one worker goroutine pinned with runtime.LockOSThread,
// using an RPC-over-channel pattern to move calls onto that goroutine
// without exposing goroutine plumbing to callers.
package tracer

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux ptrace request numbers not wrapped by golang.org/x/sys/unix with
// a friendly Go signature. Values come from <linux/ptrace.h>.
const (
	ptraceGetFpRegs  = 14
	ptraceGetSigInfo = 0x4202
	ptraceSetFpRegs  = 15
)

// UserFPRegs mirrors struct user_fpregs_struct on linux/amd64 (the FXSAVE
// legacy area PTRACE_GETFPREGS/PTRACE_SETFPREGS transfer): x87 control
// words, the eight ST/MM slots, and the sixteen XMM registers.
type UserFPRegs struct {
	Cwd, Swd, Ftw, Fop uint16
	Rip                uint64
	Rdp                uint64
	Mxcsr, MxcsrMask   uint32
	StSpace            [32]uint32
	XmmSpace           [64]uint32
	Padding            [24]uint32
}

type call struct {
	run  func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Tracer owns the worker goroutine for a single traced pid.
type Tracer struct {
	pid  int
	reqs chan call
	done chan struct{}
}

// New starts the worker goroutine for pid. The goroutine is not tied to a
// particular ptrace state yet: the first call issued through it (the
// fork+exec run via Exec, which requests tracing through
// SysProcAttr.Ptrace, or Attach for an already-running pid) establishes
// the tracer relationship on that pinned thread.
func New(pid int) *Tracer {
	t := &Tracer{pid: pid, reqs: make(chan call), done: make(chan struct{})}
	go t.loop()
	return t
}

// NewForLaunch starts the worker goroutine with no pid yet. Use Exec to
// perform the fork+exec on this goroutine's pinned OS thread: since
// PTRACE_TRACEME binds a tracee to whichever thread performed the fork
// that led to its exec, the fork itself must happen here rather than in
// an ordinary os/exec.Cmd.Start() call made from an arbitrary thread, or
// every later ptrace call in this package would fail with ESRCH.
func NewForLaunch() *Tracer {
	return New(0)
}

// Exec runs fn, expected to fork and exec the tracee, on this tracer's
// pinned OS thread, and records the pid fn returns for use by every
// subsequent call through this tracer.
func (t *Tracer) Exec(fn func() (int, error)) error {
	pid, err := do(t, func() (int, error) { return fn() })
	if err != nil {
		return err
	}
	t.pid = pid
	return nil
}

func (t *Tracer) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	for req := range t.reqs {
		val, err := safeRun(req.run)
		req.resp <- result{val, err}
		close(req.resp)
	}
}

func safeRun(run func() (any, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracer: panic in ptrace call: %v", r)
		}
	}()
	return run()
}

// Close stops the worker goroutine. It does not detach or kill the
// tracee; callers must do that first via the tracer while it is still
// running.
func (t *Tracer) Close() {
	close(t.reqs)
	<-t.done
}

func do[T any](t *Tracer, fn func() (T, error)) (T, error) {
	resp := make(chan result, 1)
	t.reqs <- call{
		run:  func() (any, error) { return fn() },
		resp: resp,
	}
	r := <-resp
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	v, _ := r.val.(T)
	return v, nil
}

func doErr(t *Tracer, fn func() error) error {
	_, err := do(t, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (t *Tracer) Pid() int { return t.pid }

func (t *Tracer) Attach() error {
	return doErr(t, func() error { return unix.PtraceAttach(t.pid) })
}

// SetOptions issues PTRACE_SETOPTIONS. Like every other ptrace call in
// this package, it must run on the pinned tracer thread, or it fails
// with ESRCH.
func (t *Tracer) SetOptions(options int) error {
	return doErr(t, func() error { return unix.PtraceSetOptions(t.pid, options) })
}

func (t *Tracer) Detach() error {
	return doErr(t, func() error { return unix.PtraceDetach(t.pid) })
}

func (t *Tracer) Cont(signal int) error {
	return doErr(t, func() error { return unix.PtraceCont(t.pid, signal) })
}

func (t *Tracer) SingleStep() error {
	return doErr(t, func() error { return unix.PtraceSingleStep(t.pid) })
}

// Syscall issues PTRACE_SYSCALL: the inferior runs until the next signal
// delivery or syscall entry/exit boundary.
func (t *Tracer) Syscall(signal int) error {
	return doErr(t, func() error { return unix.PtraceSyscall(t.pid, signal) })
}

func (t *Tracer) GetRegs(out *unix.PtraceRegs) error {
	return doErr(t, func() error { return unix.PtraceGetRegs(t.pid, out) })
}

func (t *Tracer) SetRegs(regs *unix.PtraceRegs) error {
	return doErr(t, func() error { return unix.PtraceSetRegs(t.pid, regs) })
}

func (t *Tracer) GetFPRegs(out *UserFPRegs) error {
	return doErr(t, func() error {
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptraceGetFpRegs,
			uintptr(t.pid), 0, uintptr(unsafe.Pointer(out)), 0, 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
}

func (t *Tracer) SetFPRegs(in *UserFPRegs) error {
	return doErr(t, func() error {
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptraceSetFpRegs,
			uintptr(t.pid), 0, uintptr(unsafe.Pointer(in)), 0, 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
}

// SigInfo mirrors the leading fields of the kernel's 128-byte siginfo_t;
// the remaining union bytes are opaque to this package.
type SigInfo struct {
	Signo   int32
	Errno   int32
	Code    int32
	_       int32
	Payload [112]byte
}

// GetSigInfo issues PTRACE_GETSIGINFO, used to distinguish single-step,
// syscall, and breakpoint traps that otherwise all arrive as SIGTRAP.
func (t *Tracer) GetSigInfo() (SigInfo, error) {
	return do(t, func() (SigInfo, error) {
		var info SigInfo
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptraceGetSigInfo,
			uintptr(t.pid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
		if errno != 0 {
			return info, errno
		}
		return info, nil
	})
}

func (t *Tracer) PeekUser(offset uintptr) (uint64, error) {
	return do(t, func() (uint64, error) {
		buf := make([]byte, 8)
		_, err := unix.PtracePeekUser(t.pid, offset, buf)
		if err != nil {
			return 0, err
		}
		return leUint64(buf), nil
	})
}

func (t *Tracer) PokeUser(offset uintptr, val uint64) error {
	return doErr(t, func() error {
		buf := beUint64ToLE(val)
		_, err := unix.PtracePokeUser(t.pid, offset, buf)
		return err
	})
}

func (t *Tracer) PeekData(addr uintptr, out []byte) (int, error) {
	return do(t, func() (int, error) { return unix.PtracePeekData(t.pid, addr, out) })
}

func (t *Tracer) PokeData(addr uintptr, data []byte) (int, error) {
	return do(t, func() (int, error) { return unix.PtracePokeData(t.pid, addr, data) })
}

func (t *Tracer) Wait() (unix.WaitStatus, error) {
	return do(t, func() (unix.WaitStatus, error) {
		var ws unix.WaitStatus
		_, err := unix.Wait4(t.pid, &ws, 0, nil)
		return ws, err
	})
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func beUint64ToLE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

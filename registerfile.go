package sdbgo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"sdbgo/internal/tracer"
	"sdbgo/registers"
)

// gprBlockSize and fprBlockSize are the byte sizes of user_regs_struct and
// user_fpregs_struct on linux/amd64, matching golang.org/x/sys/unix's
// PtraceRegs and this package's tracer.UserFPRegs respectively.
const (
	gprBlockSize = 27 * 8
	fprBlockSize = 512
)

// RegisterFile is a byte-for-byte shadow of the kernel register state for
// one process: the GPR block, the FPR block, and the handful of debug
// registers this engine inspects directly. Reads are served from the
// shadow; writes update the shadow and flush the owning class (GPR, FPR,
// or a single debug register word) back to the kernel.
type RegisterFile struct {
	proc *Process

	gpr [gprBlockSize]byte
	fpr [fprBlockSize]byte

	// debug shadows the handful of user-area debug register words this
	// engine cares about, keyed by their catalog byte offset.
	debug map[int]uint64
}

func newRegisterFile(proc *Process) *RegisterFile {
	return &RegisterFile{proc: proc, debug: map[int]uint64{}}
}

// refresh repopulates the entire shadow from the kernel. Called by the
// process controller on every transition to stopped, since the shadow is
// only ever valid while the inferior isn't running.
func (r *RegisterFile) refresh() error {
	var regs unix.PtraceRegs
	if err := r.proc.tr.GetRegs(&regs); err != nil {
		return wrapf(err, "read general registers")
	}
	r.loadGPR(&regs)

	var fpregs tracer.UserFPRegs
	if err := r.proc.tr.GetFPRegs(&fpregs); err != nil {
		return wrapf(err, "read floating point registers")
	}
	if err := r.loadFPR(&fpregs); err != nil {
		return err
	}

	for _, name := range []string{"dr0", "dr1", "dr2", "dr3", "dr6", "dr7"} {
		info, ok := registers.ByName(name)
		if !ok {
			continue
		}
		val, err := r.proc.tr.PeekUser(uintptr(info.Offset))
		if err != nil {
			return wrapf(err, "read debug register %s", name)
		}
		r.debug[info.Offset] = val
	}
	return nil
}

// loadGPR reinterprets a unix.PtraceRegs (27 sequential uint64 fields, the
// same layout as the kernel's user_regs_struct) as raw bytes.
func (r *RegisterFile) loadGPR(regs *unix.PtraceRegs) {
	words := (*[27]uint64)(unsafe.Pointer(regs))
	for i, w := range words {
		binary.LittleEndian.PutUint64(r.gpr[i*8:i*8+8], w)
	}
}

func (r *RegisterFile) storeGPR() unix.PtraceRegs {
	var regs unix.PtraceRegs
	words := (*[27]uint64)(unsafe.Pointer(&regs))
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(r.gpr[i*8 : i*8+8])
	}
	return regs
}

func (r *RegisterFile) loadFPR(fpregs *tracer.UserFPRegs) error {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, fpregs); err != nil {
		return wrapf(err, "encode floating point registers")
	}
	if buf.Len() != fprBlockSize {
		return newError("load fpr shadow", fmt.Errorf("unexpected fpregs size %d", buf.Len()))
	}
	copy(r.fpr[:], buf.Bytes())
	return nil
}

func (r *RegisterFile) storeFPR() (tracer.UserFPRegs, error) {
	var fpregs tracer.UserFPRegs
	if err := binary.Read(bytes.NewReader(r.fpr[:]), binary.LittleEndian, &fpregs); err != nil {
		return fpregs, wrapf(err, "decode floating point registers")
	}
	return fpregs, nil
}

func (r *RegisterFile) blockFor(info registers.Info) ([]byte, error) {
	switch info.Class {
	case registers.ClassGPR, registers.ClassSubGPR:
		if info.Offset+info.Size > len(r.gpr) {
			return nil, fmt.Errorf("register %s out of range of GPR block", info.Name)
		}
		return r.gpr[info.Offset : info.Offset+info.Size], nil
	case registers.ClassFPR:
		if info.Offset+info.Size > len(r.fpr) {
			return nil, fmt.Errorf("register %s out of range of FPR block", info.Name)
		}
		return r.fpr[info.Offset : info.Offset+info.Size], nil
	default:
		return nil, fmt.Errorf("register %s has no byte-block representation", info.Name)
	}
}

// Read returns the current shadow value of info, tagged per its catalog
// format.
func (r *RegisterFile) Read(info registers.Info) (registers.Value, error) {
	if info.Class == registers.ClassDebug {
		val, ok := r.debug[info.Offset]
		if !ok {
			return nil, newError("read register", fmt.Errorf("debug register %s not shadowed", info.Name))
		}
		return registers.Uint64Value(val), nil
	}
	raw, err := r.blockFor(info)
	if err != nil {
		return nil, newError("read register", err)
	}
	return registers.FromBytes(info, raw), nil
}

// ReadByName is a convenience wrapper over Read for a catalog register
// name.
func (r *RegisterFile) ReadByName(name string) (registers.Value, error) {
	info, ok := registers.ByName(name)
	if !ok {
		return nil, newError("read register", fmt.Errorf("unknown register %q", name))
	}
	return r.Read(info)
}

// Write stores val into the shadow at info's location and flushes the
// owning class to the kernel. Writing a sub-register only overwrites its
// byte range within the containing 64-bit slot, leaving the rest of that
// slot untouched.
func (r *RegisterFile) Write(info registers.Info, val registers.Value) error {
	raw := val.Bytes()
	// st0-st7 are catalogued at their 16-byte FXSAVE slot size, but an
	// 80-bit extended-precision value only encodes the low 10 bytes of
	// that slot; the top 6 bytes are fxsave-reserved padding, left as
	// whatever the kernel last reported rather than zeroed.
	longDoubleShort := info.Format == registers.FormatLongDouble && len(raw) < info.Size
	if len(raw) != info.Size && !longDoubleShort {
		return newError("write register", fmt.Errorf("value for %s is %d bytes, register is %d", info.Name, len(raw), info.Size))
	}

	if info.Class == registers.ClassDebug {
		word := registers.ToUint64(val)
		if err := r.proc.tr.PokeUser(uintptr(info.Offset), word); err != nil {
			return wrapf(err, "write debug register %s", info.Name)
		}
		r.debug[info.Offset] = word
		return nil
	}

	dst, err := r.blockFor(info)
	if err != nil {
		return newError("write register", err)
	}
	copy(dst, raw)

	switch info.Class {
	case registers.ClassGPR, registers.ClassSubGPR:
		regs := r.storeGPR()
		if err := r.proc.tr.SetRegs(&regs); err != nil {
			return wrapf(err, "flush general registers after writing %s", info.Name)
		}
	case registers.ClassFPR:
		fpregs, err := r.storeFPR()
		if err != nil {
			return err
		}
		if err := r.proc.tr.SetFPRegs(&fpregs); err != nil {
			return wrapf(err, "flush floating point registers after writing %s", info.Name)
		}
	}
	return nil
}

// WriteByName is a convenience wrapper over Write for a catalog register
// name.
func (r *RegisterFile) WriteByName(name string, val registers.Value) error {
	info, ok := registers.ByName(name)
	if !ok {
		return newError("write register", fmt.Errorf("unknown register %q", name))
	}
	return r.Write(info, val)
}

// PC returns the current program counter.
func (r *RegisterFile) PC() VirtAddr {
	v, err := r.ReadByName("rip")
	if err != nil {
		return 0
	}
	return VirtAddr(registers.ToUint64(v))
}

// SetPC writes the program counter.
func (r *RegisterFile) SetPC(addr VirtAddr) error {
	return r.WriteByName("rip", registers.Uint64Value(uint64(addr)))
}

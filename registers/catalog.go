// Package registers is the static x86-64 register catalog and the tagged
// value sum type used to read and write them. It knows nothing about
// ptrace; sdbgo.RegisterFile is the per-process shadow that uses this
// catalog to interpret and lay out raw kernel register bytes.
package registers

// Class groups a register by the kernel structure it lives in and the
// ptrace call needed to flush a write to it.
type Class int

const (
	ClassGPR Class = iota
	ClassSubGPR
	ClassFPR
	ClassDebug
)

// Format says how to interpret a register's raw bytes.
type Format int

const (
	FormatUint Format = iota
	FormatInt
	FormatLongDouble
	FormatVector
)

// Info is one catalog entry: a stable description of a single register,
// process-wide immutable.
type Info struct {
	Name string
	// DwarfNum is the DWARF register number used by unwinders; -1 where
	// the register has none (debug registers, mxcsr).
	DwarfNum int
	// Offset is the byte offset of this register's value within its
	// Class's flush domain: within `user_regs_struct` for ClassGPR and
	// ClassSubGPR, within `user_fpregs_struct` for ClassFPR, and within
	// the kernel `user` area (for PTRACE_PEEKUSER/POKEUSER) for
	// ClassDebug.
	Offset int
	Size   int
	Format Format
	Class  Class
}

var (
	catalog []Info
	byName  = map[string]Info{}
)

func add(info Info) {
	catalog = append(catalog, info)
	byName[info.Name] = info
}

// gprOrder is the field order of Linux's x86-64 user_regs_struct, which is
// also the order golang.org/x/sys/unix.PtraceRegs uses.
var gprOrder = []string{
	"r15", "r14", "r13", "r12", "rbp", "rbx", "r11", "r10",
	"r9", "r8", "rax", "rcx", "rdx", "rsi", "rdi", "orig_rax",
	"rip", "cs", "eflags", "rsp", "ss", "fs_base", "gs_base",
	"ds", "es", "fs", "gs",
}

var gprDwarf = map[string]int{
	"rax": 0, "rdx": 1, "rcx": 2, "rbx": 3, "rsi": 4, "rdi": 5,
	"rbp": 6, "rsp": 7, "r8": 8, "r9": 9, "r10": 10, "r11": 11,
	"r12": 12, "r13": 13, "r14": 14, "r15": 15, "rip": 16,
}

// subRegs maps a 64-bit GPR name to its narrower aliases, each described
// as (name, size in bytes, whether it is the byte-1 alias). "ah"-style
// high-byte aliases only exist for rax/rbx/rcx/rdx.
type subAlias struct {
	name    string
	size    int
	hiByte  bool // true selects byte 1 (the "ah" style alias) instead of byte 0
}

var subAliasTable = map[string][]subAlias{
	"rax": {{"eax", 4, false}, {"ax", 2, false}, {"al", 1, false}, {"ah", 1, true}},
	"rbx": {{"ebx", 4, false}, {"bx", 2, false}, {"bl", 1, false}, {"bh", 1, true}},
	"rcx": {{"ecx", 4, false}, {"cx", 2, false}, {"cl", 1, false}, {"ch", 1, true}},
	"rdx": {{"edx", 4, false}, {"dx", 2, false}, {"dl", 1, false}, {"dh", 1, true}},
	"rsi": {{"esi", 4, false}, {"si", 2, false}, {"sil", 1, false}},
	"rdi": {{"edi", 4, false}, {"di", 2, false}, {"dil", 1, false}},
	"rbp": {{"ebp", 4, false}, {"bp", 2, false}, {"bpl", 1, false}},
	"rsp": {{"esp", 4, false}, {"sp", 2, false}, {"spl", 1, false}},
	"r8":  {{"r8d", 4, false}, {"r8w", 2, false}, {"r8b", 1, false}},
	"r9":  {{"r9d", 4, false}, {"r9w", 2, false}, {"r9b", 1, false}},
	"r10": {{"r10d", 4, false}, {"r10w", 2, false}, {"r10b", 1, false}},
	"r11": {{"r11d", 4, false}, {"r11w", 2, false}, {"r11b", 1, false}},
	"r12": {{"r12d", 4, false}, {"r12w", 2, false}, {"r12b", 1, false}},
	"r13": {{"r13d", 4, false}, {"r13w", 2, false}, {"r13b", 1, false}},
	"r14": {{"r14d", 4, false}, {"r14w", 2, false}, {"r14b", 1, false}},
	"r15": {{"r15d", 4, false}, {"r15w", 2, false}, {"r15b", 1, false}},
}

func init() {
	for i, name := range gprOrder {
		off := i * 8
		dwarf, ok := gprDwarf[name]
		if !ok {
			dwarf = -1
		}
		add(Info{Name: name, DwarfNum: dwarf, Offset: off, Size: 8, Format: FormatUint, Class: ClassGPR})

		for _, sub := range subAliasTable[name] {
			byteOff := off
			if sub.hiByte {
				byteOff = off + 1
			}
			add(Info{Name: sub.name, DwarfNum: -1, Offset: byteOff, Size: sub.size, Format: FormatUint, Class: ClassSubGPR})
		}
	}

	// x87/MMX/SSE registers, byte offsets within user_fpregs_struct
	// (fxsave layout): cwd,swd,ftw,fop uint16 (8 bytes), rip,rdp uint64
	// (16 bytes), mxcsr,mxcsr_mask uint32 (8 bytes), st_space[32]uint32
	// (128 bytes) at offset 32, xmm_space[64]uint32 (256 bytes) at
	// offset 160.
	add(Info{Name: "fcw", Offset: 0, Size: 2, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "fsw", Offset: 2, Size: 2, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "ftw", Offset: 4, Size: 2, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "fop", Offset: 6, Size: 2, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "frip", Offset: 8, Size: 8, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "frdp", Offset: 16, Size: 8, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "mxcsr", Offset: 24, Size: 4, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})
	add(Info{Name: "mxcsrmask", Offset: 28, Size: 4, Format: FormatUint, Class: ClassFPR, DwarfNum: -1})

	const stSpace = 32
	for i := 0; i < 8; i++ {
		off := stSpace + i*16
		add(Info{Name: sti(i), Offset: off, Size: 16, Format: FormatLongDouble, Class: ClassFPR, DwarfNum: 33 + i})
		// mm0-mm7 alias the low 64 bits of the corresponding st register.
		add(Info{Name: mmi(i), Offset: off, Size: 8, Format: FormatVector, Class: ClassFPR, DwarfNum: -1})
	}

	const xmmSpace = 160
	for i := 0; i < 16; i++ {
		off := xmmSpace + i*16
		add(Info{Name: xmmi(i), Offset: off, Size: 16, Format: FormatVector, Class: ClassFPR, DwarfNum: 17 + i})
	}

	// Debug registers: absolute byte offset within the kernel `user`
	// area, used with PTRACE_PEEKUSER/POKEUSER. dr0-dr3 hold addresses,
	// dr6 is status, dr7 is control; dr4/dr5 are obsolete aliases of
	// dr6/dr7 and are not exposed.
	const userDebugRegBase = 848
	for i := 0; i < 8; i++ {
		if i == 4 || i == 5 {
			continue
		}
		add(Info{Name: dri(i), Offset: userDebugRegBase + i*8, Size: 8, Format: FormatUint, Class: ClassDebug, DwarfNum: -1})
	}
}

func sti(i int) string  { return "st" + digit(i) }
func mmi(i int) string  { return "mm" + digit(i) }
func xmmi(i int) string { return "xmm" + digit(i) }
func dri(i int) string  { return "dr" + digit(i) }

func digit(i int) string {
	// register indices here are at most two digits (0-15 for xmm),
	// so a tiny manual conversion avoids pulling in strconv for one line.
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

// ByName returns the catalog entry for a register name (case-sensitive,
// lower case, e.g. "rax", "eax", "al", "xmm0", "dr7").
func ByName(name string) (Info, bool) {
	info, ok := byName[name]
	return info, ok
}

// All returns every catalog entry, in registration order.
func All() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// DR7Offset and DR6Offset are convenience accessors for the two debug
// registers the process controller inspects directly (DR7 to program
// watch/breakpoint slots, DR6 to read which slot trapped).
func DR7Offset() int { info, _ := ByName("dr7"); return info.Offset }
func DR6Offset() int { info, _ := ByName("dr6"); return info.Offset }

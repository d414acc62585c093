package sdbgo

// syscallNames maps the Linux x86-64 syscall table
// (arch/x86/entry/syscalls/syscall_64.tbl) onto its names, for naming
// syscalls in stop reports and resolving names passed to a
// "catch some syscalls" policy. Not exhaustive, but covers the syscalls
// a debugging session actually stops on.
var syscallNames = map[int]string{
	0:   "read",
	1:   "write",
	2:   "open",
	3:   "close",
	4:   "stat",
	5:   "fstat",
	6:   "lstat",
	7:   "poll",
	8:   "lseek",
	9:   "mmap",
	10:  "mprotect",
	11:  "munmap",
	12:  "brk",
	13:  "rt_sigaction",
	14:  "rt_sigprocmask",
	15:  "rt_sigreturn",
	16:  "ioctl",
	17:  "pread64",
	18:  "pwrite64",
	19:  "readv",
	20:  "writev",
	21:  "access",
	22:  "pipe",
	23:  "select",
	24:  "sched_yield",
	25:  "mremap",
	28:  "madvise",
	32:  "dup",
	33:  "dup2",
	34:  "pause",
	35:  "nanosleep",
	39:  "getpid",
	41:  "socket",
	42:  "connect",
	43:  "accept",
	44:  "sendto",
	45:  "recvfrom",
	49:  "bind",
	50:  "listen",
	56:  "clone",
	57:  "fork",
	58:  "vfork",
	59:  "execve",
	60:  "exit",
	61:  "wait4",
	62:  "kill",
	63:  "uname",
	72:  "fcntl",
	78:  "getdents",
	79:  "getcwd",
	80:  "chdir",
	82:  "rename",
	83:  "mkdir",
	84:  "rmdir",
	85:  "creat",
	86:  "link",
	87:  "unlink",
	88:  "symlink",
	89:  "readlink",
	90:  "chmod",
	92:  "chown",
	95:  "umask",
	96:  "gettimeofday",
	97:  "getrlimit",
	102: "getuid",
	104: "getgid",
	107: "geteuid",
	108: "getegid",
	110: "getppid",
	137: "statfs",
	158: "arch_prctl",
	186: "gettid",
	200: "tkill",
	202: "futex",
	218: "set_tid_address",
	228: "clock_gettime",
	231: "exit_group",
	257: "openat",
	262: "newfstatat",
	270: "pselect6",
	273: "set_robust_list",
	281: "epoll_pwait",
	288: "accept4",
	290: "eventfd2",
	291: "epoll_create1",
	292: "dup3",
	293: "pipe2",
	302: "prlimit64",
	318: "getrandom",
	332: "statx",
	334: "rseq",
}

var syscallIDs = invertSyscallNames(syscallNames)

func invertSyscallNames(names map[int]string) map[string]int {
	out := make(map[string]int, len(names))
	for id, name := range names {
		out[name] = id
	}
	return out
}

// SyscallIDToName resolves a syscall number to its name, or "" if the
// number falls outside the covered table.
func SyscallIDToName(id int) string {
	return syscallNames[id]
}

// SyscallNameToID resolves a syscall name back to its number.
func SyscallNameToID(name string) (int, bool) {
	id, ok := syscallIDs[name]
	return id, ok
}

// Command sdbgo-smoke launches a target under sdbgo and prints every stop
// it observes until the target exits, capturing the target's stdout
// through an execpipe.Pipe rather than letting it inherit this process's.
// It is a usage example, not a debugger front-end: no commands, no line
// editor, no breakpoints.
package main

import (
	"fmt"
	"os"

	"sdbgo"
	"sdbgo/internal/execpipe"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <path> [args...]\n", os.Args[0])
		os.Exit(2)
	}

	pipe, err := execpipe.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sdbgo-smoke: create output pipe: %v\n", err)
		os.Exit(1)
	}
	defer pipe.CloseRead()

	proc, err := sdbgo.Launch(os.Args[1], sdbgo.LaunchOptions{
		Args:   os.Args[2:],
		Stdout: pipe.WriteEnd(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sdbgo-smoke: launch: %v\n", err)
		os.Exit(1)
	}
	pipe.CloseWrite()
	defer proc.Close()

	fmt.Printf("launched pid %d, initial state %s\n", proc.Pid(), proc.State())

	for {
		if err := proc.Resume(); err != nil {
			fmt.Fprintf(os.Stderr, "sdbgo-smoke: resume: %v\n", err)
			os.Exit(1)
		}
		reason, err := proc.WaitOnSignal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sdbgo-smoke: wait: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("stop: %s\n", reason)
		if reason.State == sdbgo.StateExited || reason.State == sdbgo.StateTerminated {
			break
		}
	}

	out, err := pipe.Read()
	if err == nil && len(out) > 0 {
		fmt.Printf("target stdout:\n%s", out)
	}
}

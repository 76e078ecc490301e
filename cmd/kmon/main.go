// Command kmon boots the kernel core on a simulated machine and exposes an
// interactive monitor for poking at it: spawning threads, signaling
// notifications, rearranging address spaces and injecting faults.
package main

import (
	"bufio"
	"flag"
	"io"
	"os"
	"strings"

	tty "github.com/mattn/go-tty"

	"kestrel/kernel/kfmt"
)

var memMiB = flag.Uint("mem", 16, "simulated physical memory size in MiB")

func main() {
	flag.Parse()

	// Output produced before the console attaches lands in the early
	// print buffer and is replayed once the sink is set below.
	kfmt.Printf("kestrel monitor\n")

	m, err := newMachine(simMemoryBase, simMemoryBase+uintptr(*memMiB)<<20)
	if err != nil {
		kfmt.SetOutputSink(os.Stderr)
		kfmt.Printf("kmon: [%s] %s\n", err.Module, err.Message)
		os.Exit(1)
	}

	readLine, out, cleanup := openConsole()
	defer cleanup()

	kfmt.SetOutputSink(out)
	m.printBoot()

	for {
		kfmt.Printf("kmon> ")

		line, rerr := readLine()
		if rerr != nil {
			kfmt.Printf("\n")
			if rerr != io.EOF {
				kfmt.Printf("kmon: %s\n", rerr.Error())
			}
			return
		}

		if quit := m.dispatchLine(strings.TrimSpace(line)); quit {
			return
		}
	}
}

// openConsole prefers the controlling terminal and falls back to standard
// input when the monitor runs without one, so command scripts can be piped
// in.
func openConsole() (readLine func() (string, error), out io.Writer, cleanup func()) {
	t, err := tty.Open()
	if err != nil {
		scanner := bufio.NewScanner(os.Stdin)
		readLine = func() (string, error) {
			if !scanner.Scan() {
				if serr := scanner.Err(); serr != nil {
					return "", serr
				}
				return "", io.EOF
			}
			return scanner.Text(), nil
		}
		return readLine, os.Stdout, func() {}
	}

	return t.ReadString, t.Output(), func() { t.Close() }
}

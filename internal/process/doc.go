// Package process runs a single external command and streams its output.
//
// A Process is one-shot: it is started once, its stdout is delivered line
// by line to a callback in the order the child wrote it, its stderr is
// drained on a separate goroutine, and Wait reports the exit status once
// both streams are exhausted.
//
// The child is placed in its own process group so Stop can signal every
// descendant (for example the real tool behind an elevation wrapper).
// Stop sends SIGTERM, waits GracefulTimeout, then sends SIGKILL. Signals
// to children running under a different user are refused by the kernel;
// Stop logs that and returns, so termination is best-effort.
//
// Example usage:
//
//	p := process.New(process.Config{
//	    Name:     "odin4",
//	    Binary:   "pkexec",
//	    Args:     []string{"./assets/odin4", "--reboot"},
//	    OnStdout: func(line string) { fmt.Println(line) },
//	})
//
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	err := p.Wait()
package process

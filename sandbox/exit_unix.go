//go:build unix

package sandbox

import (
	"fmt"
	"os"
	"syscall"
)

// describeExit explains a non-zero exit that produced no stderr
func describeExit(state *os.ProcessState) string {
	if state == nil {
		return "process did not report an exit status"
	}

	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return fmt.Sprintf("process exited with code %d", state.ExitCode())
	}

	switch sig := status.Signal(); sig {
	case syscall.SIGXCPU:
		return "CPU time limit exceeded"
	case syscall.SIGXFSZ:
		return "file size limit exceeded"
	case syscall.SIGKILL:
		return "process was killed"
	default:
		return fmt.Sprintf("process terminated by signal: %s", sig)
	}
}

//go:build unix && !linux

package sandbox

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// applyRlimits is a no-op: prlimit on another process is Linux only. The
// wall-clock timeout and output caps still apply.
func applyRlimits(int, rlimits) error {
	return nil
}

func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// waitLeader reaps the leader and then kills descendants left in its group.
// These kernels offer no waitid(WNOWAIT) through x/sys, so a descendant-free
// group id could in principle be reused in between.
func waitLeader(cmd *exec.Cmd) error {
	err := cmd.Wait()
	killGroup(cmd.Process.Pid)
	return err
}

// maxRSSKB reports peak resident memory. BSD kernels report bytes.
func maxRSSKB(state *os.ProcessState) int64 {
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok && ru != nil {
		return ru.Maxrss / BytesPerKB
	}
	return 0
}

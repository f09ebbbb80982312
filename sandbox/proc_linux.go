//go:build linux

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// applyRlimits lowers the limits of an already started child. The kernel
// allows an unprivileged parent to do this for its own children.
func applyRlimits(pid int, rl rlimits) error {
	set := func(resource int, value uint64) error {
		return unix.Prlimit(pid, resource, &unix.Rlimit{Cur: value, Max: value}, nil)
	}

	limits := []struct {
		resource int
		value    uint64
	}{
		{unix.RLIMIT_AS, rl.addressSpaceBytes},
		{unix.RLIMIT_CPU, rl.cpuSeconds},
		{unix.RLIMIT_NPROC, rl.processes},
		{unix.RLIMIT_NOFILE, rl.openFiles},
		{unix.RLIMIT_FSIZE, rl.fileSizeBytes},
	}
	for _, l := range limits {
		if l.value == 0 {
			continue
		}
		if err := set(l.resource, l.value); err != nil {
			return err
		}
	}

	return set(unix.RLIMIT_CORE, 0)
}

func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// waitLeader waits for the group leader to exit without reaping it. The
// zombie leader keeps its pid, and with it the group id, reserved while
// the rest of the group is killed. Only then is the leader reaped.
func waitLeader(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	killGroup(pid)
	return cmd.Wait()
}

// maxRSSKB reports peak resident memory. Linux reports ru_maxrss in KB.
func maxRSSKB(state *os.ProcessState) int64 {
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok && ru != nil {
		return ru.Maxrss
	}
	return 0
}

// Copyright 2017, Kerby Shedden and the Muscato contributors.

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachedEnv marks a re-exec'd process as already detached, so it
// does not try to fork itself again.
const detachedEnv = "BIGSI_DAEMON_DETACHED=1"

// IsDetachedChild reports whether the current process is the
// already-detached child (i.e. Daemonize has already run once in an
// ancestor process).
func IsDetachedChild() bool {
	for _, e := range os.Environ() {
		if e == detachedEnv {
			return true
		}
	}
	return false
}

// Daemonize re-executes the current binary with its original
// arguments in a new session (setsid), detached from the controlling
// terminal, and returns the child's pid to the caller. The caller
// (the parent process) is expected to exit 0 immediately after,
// exactly as spec.md §6 describes for the start subcommand.
//
// Go cannot safely fork() a running multi-threaded process in place,
// so detachment here follows the re-exec-with-setsid pattern rather
// than a traditional double fork; this sidesteps Q2's close-all-fds
// concern entirely, since the child starts with a clean fd table and
// performs its own explicit redirection via RedirectStdio below.
func Daemonize() (pid int, err error) {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("daemon: re-exec for detach: %w", err)
	}
	return cmd.Process.Pid, nil
}

// RedirectStdio points file descriptors 0, 1, and 2 at /dev/null and
// logPath respectively, using dup2 after opening the target files, per
// Q2's explicit recommendation — never by overwriting the os.Stdin/
// os.Stdout/os.Stderr globals.
func RedirectStdio(logPath string) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("daemon: open log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	if err := unix.Dup2(int(devNull.Fd()), 0); err != nil {
		return fmt.Errorf("daemon: dup2 stdin: %w", err)
	}
	if err := unix.Dup2(int(logFile.Fd()), 1); err != nil {
		return fmt.Errorf("daemon: dup2 stdout: %w", err)
	}
	if err := unix.Dup2(int(logFile.Fd()), 2); err != nil {
		return fmt.Errorf("daemon: dup2 stderr: %w", err)
	}
	return nil
}

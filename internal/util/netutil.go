//go:build unix

package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// ListenFdsEnvKey is the environment variable a socket-activating
	// supervisor uses to announce how many listening descriptors it passed.
	ListenFdsEnvKey = "LISTEN_FDS"
	// ListenPidEnvKey names the process the descriptors are meant for.
	ListenPidEnvKey = "LISTEN_PID"

	// listenFdsStart is the first passed descriptor; 0-2 are stdio.
	listenFdsStart = 3
)

// isCloexecSet checks if the FD_CLOEXEC flag is set on the given file descriptor.
func isCloexecSet(fd uintptr) (bool, error) {
	flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0)
	if err != nil {
		return false, fmt.Errorf("fcntl F_GETFD failed for fd %d: %w", fd, err)
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

// SetCloexec sets or clears the close-on-exec flag for a file descriptor.
// Descriptors inherited from a supervisor arrive without it.
func SetCloexec(fd uintptr, enabled bool) error {
	flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0)
	if err != nil {
		return fmt.Errorf("fcntl F_GETFD failed: %w", err)
	}

	if enabled {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}

	if _, err := unix.FcntlInt(fd, unix.F_SETFD, flags); err != nil {
		return fmt.Errorf("fcntl F_SETFD failed: %w", err)
	}
	return nil
}

// NewListenerFromFD creates a net.Listener from an inherited listening socket.
// The descriptor is marked close-on-exec and consumed: on return it has been
// closed, and the listener holds its own duplicate.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	if err := SetCloexec(fd, true); err != nil {
		return nil, fmt.Errorf("failed to set FD_CLOEXEC on inherited FD %d: %w", fd, err)
	}

	file := os.NewFile(fd, fmt.Sprintf("listener-from-fd-%d", fd))
	if file == nil {
		return nil, fmt.Errorf("os.NewFile returned nil for FD %d", fd)
	}
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener failed for FD %d: %w", fd, err)
	}
	return listener, nil
}

// InheritedListener returns the listening socket passed by a socket-activating
// supervisor (LISTEN_FDS / LISTEN_PID), or nil when none was passed. Exactly one
// descriptor is accepted. The environment variables are cleared so they do not
// leak into child processes.
func InheritedListener() (net.Listener, error) {
	pidEnv, fdsEnv := os.Getenv(ListenPidEnvKey), os.Getenv(ListenFdsEnvKey)
	os.Unsetenv(ListenPidEnvKey)
	os.Unsetenv(ListenFdsEnvKey)
	return inheritedListener(pidEnv, fdsEnv, listenFdsStart)
}

func inheritedListener(pidEnv, fdsEnv string, first uintptr) (net.Listener, error) {
	if fdsEnv == "" {
		return nil, nil
	}
	if pidEnv != "" {
		pid, err := strconv.Atoi(pidEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", ListenPidEnvKey, pidEnv, err)
		}
		if pid != os.Getpid() {
			return nil, nil
		}
	}

	n, err := strconv.Atoi(fdsEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", ListenFdsEnvKey, fdsEnv, err)
	}
	switch {
	case n < 0:
		return nil, fmt.Errorf("invalid negative %s: %d", ListenFdsEnvKey, n)
	case n == 0:
		return nil, nil
	case n > 1:
		return nil, fmt.Errorf("expected one inherited listener, got %d", n)
	}
	return NewListenerFromFD(first)
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}

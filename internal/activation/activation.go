// Package activation picks up a webhook socket handed over by systemd socket
// activation, so serve can run from a packsync.socket unit.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Passed descriptors start after stdin, stdout and stderr.
const firstFD = 3

// fdSet is the parsed LISTEN_* environment of this process
type fdSet struct {
	count int
	names []string
}

// parseEnv reads the socket activation variables. A nil set means the
// process was not socket activated.
func parseEnv(getenv func(string) string, pid int) (*fdSet, error) {
	pidStr := getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		return nil, nil
	}

	fdsStr := getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	count, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if count < 1 {
		return nil, nil
	}

	set := &fdSet{count: count}
	if names := getenv("LISTEN_FDNAMES"); names != "" {
		set.names = strings.Split(names, ":")
	}
	return set, nil
}

// index returns the offset of the descriptor called name. An empty name, or
// a set without names, selects the first descriptor.
func (s *fdSet) index(name string) (int, bool) {
	if name == "" || len(s.names) == 0 {
		return 0, true
	}
	for i, n := range s.names {
		if i >= s.count {
			break
		}
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Listener returns the socket activated listener called name (the
// FileDescriptorName= of the socket unit). It returns nil when the process
// was not socket activated. The LISTEN_* variables are cleared so child
// processes do not inherit them.
func Listener(name string) (net.Listener, error) {
	set, err := parseEnv(os.Getenv, os.Getpid())
	if err != nil || set == nil {
		return nil, err
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	i, ok := set.index(name)
	if !ok {
		return nil, fmt.Errorf("no activated socket named %q (have %s)", name, strings.Join(set.names, ", "))
	}

	fd := firstFD + i
	file := os.NewFile(uintptr(fd), "packsync-webhook")
	if file == nil {
		return nil, fmt.Errorf("failed to open activated fd %d", fd)
	}
	// FileListener dups the descriptor
	defer func() { _ = file.Close() }()

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
	}
	return ln, nil
}

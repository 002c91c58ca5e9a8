// Package pidfile implements the §6 PID-file contract: a running proxy
// advertises its PID at a known path, and a new instance starting up
// reads that path, signals the predecessor to drain, then overwrites
// it with its own PID. Grounded on the teacher's os.Getenv/os.Stat
// style of trivial filesystem-contract code (cmd/server/main.go) and
// on golang.org/x/sys/unix for the liveness/signal primitives already
// used by internal/pool's liveness probe.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Read returns the PID recorded at path, or an error if the file is
// absent or does not contain a valid integer.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile %q: malformed contents: %w", path, err)
	}
	return pid, nil
}

// Write records pid's own PID at path, creating or truncating it.
func Write(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

// Alive reports whether pid names a live process, using signal 0
// (no-op existence check; EPERM still counts as alive — we just lack
// permission to signal it, not evidence it's gone).
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// SignalPredecessor reads the PID recorded at path and, if it names a
// live process other than the caller, sends it sig (typically SIGUSR2,
// the successor-drain signal per §6). Absence of the file, a stale
// entry, or a dead process are all quietly ignored — there is no
// predecessor to hand off to.
func SignalPredecessor(path string, sig unix.Signal) error {
	pid, err := Read(path)
	if err != nil {
		return nil
	}
	if pid == os.Getpid() || !Alive(pid) {
		return nil
	}
	return unix.Kill(pid, sig)
}

// Package ptyproc spawns shell processes behind a pseudo-terminal and
// exposes non-blocking I/O on the master side.
//
// Reads and writes go through the raw descriptor so a full frame loop is
// never parked inside the runtime poller: callers see ErrWouldBlock and
// retry on a later frame.
package ptyproc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that a non-blocking read or write could not make
// progress. It is transient, never fatal.
var ErrWouldBlock = errors.New("pty: operation would block")

// SessionIDEnv and NotifySockEnv are exported to spawned shells so tools
// running inside a session can address notifications back to the host.
const (
	SessionIDEnv  = "ARCHON_SESSION_ID"
	NotifySockEnv = "ARCHON_NOTIFY_SOCK"
)

// Options configures a spawn.
type Options struct {
	Shell      string // shell binary; required
	Dir        string // initial working directory; empty means inherit
	Cols, Rows int
	Slot       int    // session slot index, exported as ARCHON_SESSION_ID
	NotifySock string // socket path, exported as ARCHON_NOTIFY_SOCK
}

// Proc is one spawned shell bound to a PTY master.
type Proc struct {
	file *os.File
	fd   int
	cmd  *exec.Cmd
	pid  int
}

// Spawn launches opts.Shell on the slave side of a fresh PTY pair and
// puts the master descriptor into non-blocking mode.
func Spawn(opts Options) (*Proc, error) {
	if opts.Shell == "" {
		return nil, errors.New("pty: no shell configured")
	}
	cmd := exec.Command(opts.Shell)
	cmd.Dir = opts.Dir
	cmd.Env = BuildEnv(opts.Slot, opts.NotifySock)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(opts.Cols),
		Rows: uint16(opts.Rows),
	})
	if err != nil {
		return nil, fmt.Errorf("pty: spawn %s: %w", opts.Shell, err)
	}

	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		f.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("pty: set nonblock: %w", err)
	}

	return &Proc{file: f, fd: fd, cmd: cmd, pid: cmd.Process.Pid}, nil
}

// BuildEnv returns the process environment plus the per-session variables.
func BuildEnv(slot int, notifySock string) []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	env = append(env, fmt.Sprintf("%s=%d", SessionIDEnv, slot))
	if notifySock != "" {
		env = append(env, fmt.Sprintf("%s=%s", NotifySockEnv, notifySock))
	}
	return env
}

// Pid returns the child process id.
func (p *Proc) Pid() int { return p.pid }

// Read performs one non-blocking read from the master.
// Returns ErrWouldBlock when no data is pending and io.EOF once the slave
// side is gone (Linux reports EIO on a master whose slave has closed).
func (p *Proc) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(p.fd, buf)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case errors.Is(err, unix.EIO):
			return 0, io.EOF
		default:
			return 0, fmt.Errorf("pty: read: %w", err)
		}
	}
}

// Write performs one non-blocking write to the master. It may write a
// prefix of buf; the count always reflects bytes actually accepted.
// A full descriptor yields (n, ErrWouldBlock), never an error state.
func (p *Proc) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(p.fd, buf[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return written, ErrWouldBlock
		default:
			return written, fmt.Errorf("pty: write: %w", err)
		}
	}
	return written, nil
}

// Resize applies a window-size ioctl to the PTY.
func (p *Proc) Resize(cols, rows int) error {
	return pty.Setsize(p.file, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Signal delivers sig to the child.
func (p *Proc) Signal(sig syscall.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Alive probes the child with signal 0.
func (p *Proc) Alive() bool {
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// TryWait reaps the child without blocking. It reports whether the
// process has exited. Only valid when no Wait goroutine is armed.
func (p *Proc) TryWait() (bool, error) {
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			// Already reaped elsewhere; treat as exited.
			return true, nil
		case err != nil:
			return false, fmt.Errorf("pty: wait4: %w", err)
		}
		return pid == p.pid, nil
	}
}

// Wait blocks until the child exits and reaps it.
func (p *Proc) Wait() error {
	return p.cmd.Wait()
}

// Close releases the master descriptor. The child is not signalled here;
// lifecycle decisions belong to the session owning the Proc.
func (p *Proc) Close() error {
	return p.file.Close()
}

// Package session owns the full lifecycle of one terminal slot: the
// PTY-backed shell process, the emulator handle, the backpressure write
// buffer, the render epoch, and exit detection.
//
// All fields are mutated only from the frame loop. The one cross-cutting
// piece, the exit watcher, hands off through a WaitContext state tag and
// a channel, never a lock.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/b/archon/pkg/ptyproc"
	"github.com/b/archon/pkg/term"
)

// ErrNotSpawned reports an operation that needs a live process.
var ErrNotSpawned = errors.New("session: not spawned")

// Transport is the session's handle on its PTY-backed process.
// ptyproc.Proc is the production implementation; tests substitute fakes.
// Read and Write follow ptyproc semantics: ErrWouldBlock is transient,
// io.EOF means the slave side is gone.
type Transport interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Resize(cols, rows int) error
	Signal(sig syscall.Signal) error
	Alive() bool
	TryWait() (bool, error)
	Wait() error
	Close() error
	Pid() int
}

// Emulator is the terminal-emulation collaborator. term.Bridge is the
// production implementation.
type Emulator interface {
	Feed(data []byte)
	Resize(cols, rows int)
	Close() error
}

// SpawnFunc opens a PTY pair and execs a shell on the slave side.
type SpawnFunc func(opts ptyproc.Options) (Transport, error)

// EmulatorFunc constructs an emulator at the given geometry.
type EmulatorFunc func(cols, rows int) (Emulator, error)

// CwdFunc resolves the working directory of a process.
type CwdFunc func(pid int) (string, error)

func defaultSpawn(opts ptyproc.Options) (Transport, error) {
	return ptyproc.Spawn(opts)
}

func defaultEmulator(cols, rows int) (Emulator, error) {
	return term.New(cols, rows), nil
}

func defaultCwd(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
}

// Params configures one session slot.
type Params struct {
	Slot       int
	Shell      string
	NotifySock string
	Cols, Rows int

	IDs   *IDAllocator
	Exits chan<- ExitEvent // nil disables the async exit watcher

	CwdPollInterval  time.Duration // min gap between cwd lookups
	WriteShrinkBytes int           // pending-buffer cap before shrink
	ReadChunkBytes   int           // PTY read scratch size

	// Test seams. Nil selects the production implementations.
	Spawn    SpawnFunc
	Emulator EmulatorFunc
	Cwd      CwdFunc
}

// Session is one terminal slot. The slot index is stable for the life
// of the host; everything else resets on respawn.
type Session struct {
	params Params

	id      uint64 // globally unique, reassigned every respawn
	gen     uint64 // bumped on every spawn; authenticates exit events
	epoch   uint64 // monotonic; bumped once per visible-content change
	spawned bool
	dead    bool

	proc    Transport
	emu     Emulator
	pid     int
	watcher *WaitContext

	cols, rows int

	pending []byte // backpressure write queue, FIFO
	scratch []byte // read buffer, reused across frames

	selection bool

	cwdPath      string
	cwdBase      string
	lastCwdCheck time.Time
}

// New creates an unspawned session slot.
func New(params Params) *Session {
	if params.Spawn == nil {
		params.Spawn = defaultSpawn
	}
	if params.Emulator == nil {
		params.Emulator = defaultEmulator
	}
	if params.Cwd == nil {
		params.Cwd = defaultCwd
	}
	if params.ReadChunkBytes <= 0 {
		params.ReadChunkBytes = 4096
	}
	if params.WriteShrinkBytes <= 0 {
		params.WriteShrinkBytes = 64 * 1024
	}
	if params.CwdPollInterval <= 0 {
		params.CwdPollInterval = time.Second
	}
	return &Session{
		params: params,
		cols:   params.Cols,
		rows:   params.Rows,
	}
}

// Slot returns the stable slot index.
func (s *Session) Slot() int { return s.params.Slot }

// ID returns the session id of the current incarnation, 0 if never spawned.
func (s *Session) ID() uint64 { return s.id }

// Generation returns the current spawn generation.
func (s *Session) Generation() uint64 { return s.gen }

// Epoch returns the render epoch. Renderers cache content per session
// and regenerate only when their presented epoch is behind this one.
func (s *Session) Epoch() uint64 { return s.epoch }

// Spawned reports whether a process is currently attached.
func (s *Session) Spawned() bool { return s.spawned }

// Dead reports whether the attached process has exited.
func (s *Session) Dead() bool { return s.dead }

// Pid returns the child pid, 0 when unspawned.
func (s *Session) Pid() int { return s.pid }

// Cwd returns the cached working directory and its basename.
func (s *Session) Cwd() (path, base string) { return s.cwdPath, s.cwdBase }

func (s *Session) bumpEpoch() { s.epoch++ }

// EnsureSpawned attaches a shell process to the slot. A no-op when a
// live process is already attached. workingDir overrides the initial
// directory; empty selects the home directory. On failure every partial
// allocation is rolled back and the slot stays cleanly unspawned.
func (s *Session) EnsureSpawned(workingDir string) error {
	if s.spawned && !s.dead {
		return nil
	}
	if s.spawned {
		// Dead process still attached; clear it before respawning.
		s.teardown()
	}

	dir := workingDir
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		}
	}

	proc, err := s.params.Spawn(ptyproc.Options{
		Shell:      s.params.Shell,
		Dir:        dir,
		Cols:       s.cols,
		Rows:       s.rows,
		Slot:       s.params.Slot,
		NotifySock: s.params.NotifySock,
	})
	if err != nil {
		return err
	}
	emu, err := s.params.Emulator(s.cols, s.rows)
	if err != nil {
		proc.Close()
		return fmt.Errorf("session: emulator: %w", err)
	}

	s.proc = proc
	s.emu = emu
	s.pid = proc.Pid()
	s.gen++
	s.id = s.params.IDs.Next()
	s.spawned = true
	s.dead = false
	s.scratch = make([]byte, s.params.ReadChunkBytes)

	if s.params.Exits != nil {
		s.armWatcher()
	}

	// Shells often print a prompt immediately; pull it in now instead of
	// waiting a full frame.
	if err := s.ProcessOutput(); err != nil {
		s.teardown()
		return err
	}

	s.cwdPath = dir
	s.cwdBase = filepath.Base(dir)
	s.lastCwdCheck = time.Time{}
	s.bumpEpoch()
	return nil
}

// Restart tears the slot down and respawns it. Restarting a live,
// non-dead session is a no-op, not an error.
func (s *Session) Restart(workingDir string) error {
	if s.spawned && !s.dead {
		return nil
	}
	s.teardown()
	return s.EnsureSpawned(workingDir)
}

// armWatcher launches the exit-watch goroutine for the current process.
// The WaitContext captures pid and generation now; a completion arriving
// after a respawn carries stale values and is rejected by ApplyExit.
func (s *Session) armWatcher() {
	wc := &WaitContext{pid: s.pid, gen: s.gen}
	s.watcher = wc
	proc := s.proc
	exits := s.params.Exits
	slot := s.params.Slot
	go func() {
		_ = proc.Wait()
		if wc.fire() {
			exits <- ExitEvent{Slot: slot, Pid: wc.pid, Gen: wc.gen}
		}
	}()
}

// Reconfigure applies updated host tuning to the slot. The shell takes
// effect on the next spawn; intervals and buffer thresholds apply
// immediately (the read scratch is sized at spawn, so a new chunk size
// also waits for a respawn). Zero values leave the current setting.
func (s *Session) Reconfigure(shell string, cwdPoll time.Duration, writeShrinkBytes, readChunkBytes int) {
	if shell != "" {
		s.params.Shell = shell
	}
	if cwdPoll > 0 {
		s.params.CwdPollInterval = cwdPoll
	}
	if writeShrinkBytes > 0 {
		s.params.WriteShrinkBytes = writeShrinkBytes
	}
	if readChunkBytes > 0 {
		s.params.ReadChunkBytes = readChunkBytes
	}
}

// ApplyExit applies an exit completion to this slot. Events whose
// generation or pid no longer match the live incarnation are stale
// leftovers from before a respawn and are dropped without touching
// state. Reports whether the event was applied.
func (s *Session) ApplyExit(ev ExitEvent) bool {
	if !s.spawned || s.dead {
		return false
	}
	if ev.Gen != s.gen || ev.Pid != s.pid {
		return false
	}
	s.MarkDead()
	return true
}

// MarkDead flags the attached process as gone and bumps the epoch so
// renderers pick up the placeholder. Callers use it when a fatal
// per-session I/O error surfaces outside the exit-watch path. No-op on
// an unspawned or already-dead slot.
func (s *Session) MarkDead() {
	if !s.spawned || s.dead {
		return
	}
	s.dead = true
	s.bumpEpoch()
}

// CheckAlive is the synchronous poll fallback used when no watcher is
// armed. It reports whether the process is still running, marking the
// session dead (and bumping the epoch) on the first detected exit.
// When reaping itself fails the signal-0 probe decides.
func (s *Session) CheckAlive() bool {
	if !s.spawned || s.dead {
		return false
	}
	if s.watcher != nil {
		// Async watcher owns exit detection; trust current state.
		return true
	}
	exited, err := s.proc.TryWait()
	if err != nil {
		exited = !s.proc.Alive()
	}
	if !exited {
		return true
	}
	s.MarkDead()
	return false
}

// ProcessOutput drains the PTY master until a read would block or hits
// EOF. Every non-empty chunk is fed to the emulator and bumps the epoch,
// so a burst larger than one chunk is fully absorbed in a single call
// rather than trickling in at frame granularity. Errors other than
// would-block are fatal to this session and propagate.
func (s *Session) ProcessOutput() error {
	if !s.spawned || s.dead {
		return nil
	}
	for {
		n, err := s.proc.Read(s.scratch)
		if n > 0 {
			s.emu.Feed(s.scratch[:n])
			s.bumpEpoch()
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, ptyproc.ErrWouldBlock):
			return nil
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// SendInput writes bytes to the shell, preserving FIFO order across the
// backpressure buffer: anything buffered from earlier would-block writes
// flushes before the new bytes. Would-block is never an error; the
// unsent suffix just waits for the next send.
func (s *Session) SendInput(data []byte) error {
	if !s.spawned || s.dead {
		return ErrNotSpawned
	}

	if len(s.pending) > 0 {
		n, err := s.proc.Write(s.pending)
		s.pending = s.pending[n:]
		if errors.Is(err, ptyproc.ErrWouldBlock) {
			s.pending = append(s.pending, data...)
			return nil
		}
		if err != nil {
			return err
		}
	}

	// Pending is empty; release over-grown backing storage left behind
	// by a large paste before taking new bytes.
	s.maybeShrinkPending()

	if len(data) == 0 {
		return nil
	}
	n, err := s.proc.Write(data)
	if errors.Is(err, ptyproc.ErrWouldBlock) {
		s.pending = append(s.pending, data[n:]...)
		return nil
	}
	return err
}

// PendingBytes reports how much input is waiting on backpressure.
func (s *Session) PendingBytes() int { return len(s.pending) }

func (s *Session) maybeShrinkPending() {
	if len(s.pending) == 0 && cap(s.pending) > s.params.WriteShrinkBytes {
		s.pending = nil
	}
}

// UpdateCwd refreshes the cached working directory, at most once per
// poll interval. Lookup failures read as "no change". A real change
// replaces path and basename together and bumps the epoch.
func (s *Session) UpdateCwd(now time.Time) {
	if !s.spawned || s.dead {
		return
	}
	if !s.lastCwdCheck.IsZero() && now.Sub(s.lastCwdCheck) < s.params.CwdPollInterval {
		return
	}
	s.lastCwdCheck = now

	path, err := s.params.Cwd(s.pid)
	if err != nil || path == "" || path == s.cwdPath {
		return
	}
	s.cwdPath = path
	s.cwdBase = filepath.Base(path)
	s.bumpEpoch()
}

// Resize propagates new geometry to the PTY and the emulator.
func (s *Session) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 || (cols == s.cols && rows == s.rows) {
		return
	}
	s.cols, s.rows = cols, rows
	if !s.spawned {
		return
	}
	s.emu.Resize(cols, rows)
	_ = s.proc.Resize(cols, rows)
	s.bumpEpoch()
}

// SetSelection marks that the host UI holds a selection in this
// session's content.
func (s *Session) SetSelection() {
	if !s.selection {
		s.selection = true
		s.bumpEpoch()
	}
}

// ClearSelection drops any selection, bumping the epoch only when one
// actually existed.
func (s *Session) ClearSelection() {
	if s.selection {
		s.selection = false
		s.bumpEpoch()
	}
}

// HasSelection reports whether a selection is held.
func (s *Session) HasSelection() bool { return s.selection }

// Deinit releases everything attached to the slot. Idempotent: safe
// under repeated calls and after partial construction.
func (s *Session) Deinit() {
	s.teardown()
}

// teardown releases the process and emulator handles, discards pending
// writes, clears any selection, and disarms the exit watcher. A
// still-alive child is signalled before release. Nulled handles make
// repeat calls no-ops.
func (s *Session) teardown() {
	s.ClearSelection()
	s.pending = nil

	if s.watcher != nil {
		// Exactly one of {fired callback, this disarm} consumes the
		// context; if the callback won, its event dies downstream on
		// the generation check.
		s.watcher.disarm()
		s.watcher = nil
	}

	if s.proc != nil {
		if !s.dead {
			_ = s.proc.Signal(syscall.SIGHUP)
		}
		_ = s.proc.Close()
		s.proc = nil
	}
	if s.emu != nil {
		_ = s.emu.Close()
		s.emu = nil
	}
	s.pid = 0
	s.spawned = false
	s.dead = false
}

// Emu exposes the emulator handle to the rendering layer. Nil when
// unspawned.
func (s *Session) Emu() Emulator { return s.emu }

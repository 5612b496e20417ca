package main

import (
	"strings"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/b/archon/pkg/config"
	"github.com/b/archon/pkg/notify"
	"github.com/b/archon/pkg/ptyproc"
	"github.com/b/archon/pkg/session"
)

// stubProc is an inert Transport for sessions that only need to exist.
type stubProc struct{}

func (stubProc) Read(buf []byte) (int, error) { return 0, ptyproc.ErrWouldBlock }

func (stubProc) Write(buf []byte) (int, error) { return len(buf), nil }

func (stubProc) Resize(cols, rows int) error { return nil }

func (stubProc) Signal(sig syscall.Signal) error { return nil }

func (stubProc) Alive() bool { return true }

func (stubProc) TryWait() (bool, error) { return false, nil }

func (stubProc) Wait() error { return nil }

func (stubProc) Close() error { return nil }

func (stubProc) Pid() int { return 4242 }

type stubEmu struct{ content string }

func (e *stubEmu) Feed(data []byte) {}

func (e *stubEmu) Resize(cols, rows int) {}

func (e *stubEmu) Close() error { return nil }

func (e *stubEmu) Render() string { return e.content }

func testModel(t *testing.T, slots int) hostModel {
	t.Helper()
	cfg := &config.Config{}
	cfg.Timing.FrameIntervalMs = 33
	var ids session.IDAllocator
	sessions := make([]*session.Session, slots)
	for i := range sessions {
		sessions[i] = session.New(session.Params{Slot: i, Shell: "/bin/sh", IDs: &ids})
	}
	return newHostModel(cfg, sessions, make(chan session.ExitEvent, 4), &notify.Queue{})
}

func TestKeyToBytes(t *testing.T) {
	cases := []struct {
		name string
		msg  tea.KeyMsg
		want string
	}{
		{"runes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ls")}, "ls"},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, " "},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, "\r"},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, "\x7f"},
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, "\t"},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, "\x1b"},
		{"up", tea.KeyMsg{Type: tea.KeyUp}, "\x1b[A"},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, "\x03"},
		{"alt+rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b"), Alt: true}, "\x1bb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(keyToBytes(tc.msg)); got != tc.want {
				t.Errorf("keyToBytes(%s) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestTileSize_NeverDegenerate(t *testing.T) {
	for _, n := range []int{1, 2, 4, 6, 9} {
		for _, dims := range [][2]int{{20, 5}, {80, 24}, {200, 60}} {
			cols, rows := tileSize(n, dims[0], dims[1])
			if cols < 10 || rows < 3 {
				t.Errorf("tileSize(%d, %d, %d) = (%d, %d), below minimum", n, dims[0], dims[1], cols, rows)
			}
		}
	}
}

func TestApplyNotification_StatusHighlights(t *testing.T) {
	m := testModel(t, 2)

	m.applyNotification(notify.Notification{Session: 1, Kind: notify.KindStatus, Status: notify.StatusAwaitingApproval})
	if m.highlights[1] != hlAwaiting {
		t.Errorf("highlight = %v, want awaiting", m.highlights[1])
	}
	m.applyNotification(notify.Notification{Session: 1, Kind: notify.KindStatus, Status: notify.StatusDone})
	if m.highlights[1] != hlDone {
		t.Errorf("highlight = %v, want done", m.highlights[1])
	}
	m.applyNotification(notify.Notification{Session: 1, Kind: notify.KindStatus, Status: notify.StatusStart})
	if m.highlights[1] != hlNone {
		t.Errorf("highlight = %v, want none", m.highlights[1])
	}
}

func TestRunFrame_IgnoresOutOfRangeEvents(t *testing.T) {
	m := testModel(t, 2)

	m.queue.Push(notify.Notification{Session: 99, Kind: notify.KindStatus, Status: notify.StatusDone})
	m.exits <- session.ExitEvent{Slot: -1, Pid: 1, Gen: 1}
	m.exits <- session.ExitEvent{Slot: 42, Pid: 1, Gen: 1}

	m.runFrame(time.Now()) // must not panic or mutate anything
	for i, h := range m.highlights {
		if h != hlNone {
			t.Errorf("slot %d highlight mutated by out-of-range event", i)
		}
	}
	if m.queue.Len() != 0 {
		t.Error("queue not drained")
	}
}

func TestRenderTile_PlaceholderVisibility(t *testing.T) {
	m := testModel(t, 2)

	// A never-spawned slot sits at epoch 0; the tile body must still be
	// the placeholder, not the zero-value cache entry.
	tile := m.renderTile(1, m.sessions[1], 30, 5)
	if !strings.Contains(tile, "not started") {
		t.Fatalf("unspawned tile missing placeholder:\n%s", tile)
	}

	var ids session.IDAllocator
	s := session.New(session.Params{
		Slot:  0,
		Shell: "/bin/sh",
		IDs:   &ids,
		Spawn: func(ptyproc.Options) (session.Transport, error) { return stubProc{}, nil },
		Emulator: func(cols, rows int) (session.Emulator, error) {
			return &stubEmu{content: "shell output"}, nil
		},
		Cwd: func(int) (string, error) { return "/tmp", nil },
	})
	m.sessions[0] = s
	if err := s.EnsureSpawned("/tmp"); err != nil {
		t.Fatalf("EnsureSpawned() error: %v", err)
	}
	tile = m.renderTile(0, s, 30, 5)
	if !strings.Contains(tile, "shell output") {
		t.Fatalf("spawned tile missing emulator content:\n%s", tile)
	}

	// Teardown does not move the epoch; the cached content must not
	// outlive the session.
	s.Deinit()
	tile = m.renderTile(0, s, 30, 5)
	if strings.Contains(tile, "shell output") {
		t.Errorf("torn-down tile still shows stale cache:\n%s", tile)
	}
	if !strings.Contains(tile, "not started") {
		t.Errorf("torn-down tile missing placeholder:\n%s", tile)
	}
}

func TestCenterText_FitsBox(t *testing.T) {
	out := centerText("hi", 10, 3)
	lines := len(splitLines(out))
	if lines != 3 {
		t.Errorf("centerText produced %d lines, want 3", lines)
	}
}

func TestClampLines(t *testing.T) {
	out := clampLines("a\nb\nc\nd", 2)
	if out != "c\nd" {
		t.Errorf("clampLines = %q, want %q (keep the bottom)", out, "c\nd")
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"

	"github.com/b/archon/pkg/config"
	"github.com/b/archon/pkg/notify"
	"github.com/b/archon/pkg/perf"
	"github.com/b/archon/pkg/session"
)

// highlight is the per-slot border state driven by notifications.
type highlight int

const (
	hlNone highlight = iota
	hlAwaiting
	hlDone
)

const maxStoryBytes = 1 << 20

var (
	borderIdle     = lipgloss.Color("240")
	borderFocus    = lipgloss.Color("39")
	borderAwaiting = lipgloss.Color("220")
	borderDone     = lipgloss.Color("42")
	borderDead     = lipgloss.Color("196")
)

type frameMsg time.Time

type reloadConfigMsg struct{}

// hostModel is the frame coordinator: a single-threaded cooperative loop
// that drains exit and notification events once per frame and owns every
// session slot. Nothing in Update may block.
type hostModel struct {
	cfg      *config.Config
	sessions []*session.Session
	exits    chan session.ExitEvent
	queue    *notify.Queue

	highlights []highlight

	// Per-slot render cache, valid while presented[i] == session epoch.
	presented []uint64
	cache     []string

	focus         int
	width, height int

	story     viewport.Model
	storyPath string
	storyOpen bool

	notice      string
	noticeUntil time.Time
}

func newHostModel(cfg *config.Config, sessions []*session.Session, exits chan session.ExitEvent, queue *notify.Queue) hostModel {
	n := len(sessions)
	return hostModel{
		cfg:        cfg,
		sessions:   sessions,
		exits:      exits,
		queue:      queue,
		highlights: make([]highlight, n),
		presented:  make([]uint64, n),
		cache:      make([]string, n),
	}
}

func (m hostModel) frameTick() tea.Cmd {
	return tea.Tick(m.cfg.FrameInterval(), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Init implements tea.Model
func (m hostModel) Init() tea.Cmd {
	return m.frameTick()
}

// Update implements tea.Model
func (m hostModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.runFrame(time.Time(msg))
		return m, m.frameTick()

	case reloadConfigMsg:
		if cfg, err := config.LoadConfig(configPathFlag()); err == nil {
			m.cfg = cfg
			for _, s := range m.sessions {
				s.Reconfigure(cfg.Shell, cfg.CwdPollInterval(), cfg.Buffers.WriteShrinkBytes, cfg.Buffers.ReadChunkBytes)
			}
			logEvent("CONFIG_RELOAD shell=%s", cfg.Shell)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.applyGeometry()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			for i := range m.sessions {
				if zone.Get(tileID(i)).InBounds(msg) {
					m.focusSlot(i)
					break
				}
			}
		}
		return m, nil
	}
	return m, nil
}

// runFrame is the once-per-frame drain-and-apply pass.
func (m *hostModel) runFrame(now time.Time) {
	defer perf.Start("frame").Stop()

	// Exit completions first so output from a dying shell was already
	// pumped on an earlier frame.
drain:
	for {
		select {
		case ev := <-m.exits:
			if ev.Slot >= 0 && ev.Slot < len(m.sessions) {
				if m.sessions[ev.Slot].ApplyExit(ev) {
					logEvent("SESSION_EXIT slot=%d pid=%d gen=%d", ev.Slot, ev.Pid, ev.Gen)
				}
			}
		default:
			break drain
		}
	}

	// One swap for the whole pending list; out-of-range indices ignored.
	for _, n := range m.queue.Drain() {
		if n.Session < 0 || n.Session >= len(m.sessions) {
			continue
		}
		m.applyNotification(n)
	}

	for _, s := range m.sessions {
		if !s.Spawned() || s.Dead() {
			continue
		}
		if err := s.ProcessOutput(); err != nil {
			// Fatal to this session only; the host lives on.
			logEvent("SESSION_IO_ERROR slot=%d err=%v", s.Slot(), err)
			s.MarkDead()
			continue
		}
		s.UpdateCwd(now)
	}

	if m.notice != "" && now.After(m.noticeUntil) {
		m.notice = ""
	}
}

func (m *hostModel) applyNotification(n notify.Notification) {
	switch n.Kind {
	case notify.KindStatus:
		switch n.Status {
		case notify.StatusStart:
			m.highlights[n.Session] = hlNone
		case notify.StatusAwaitingApproval:
			m.highlights[n.Session] = hlAwaiting
		case notify.StatusDone:
			m.highlights[n.Session] = hlDone
		}
		logEvent("NOTIFY_STATUS session=%d state=%s", n.Session, n.Status)
	case notify.KindStory:
		m.openStory(n.Path)
		logEvent("NOTIFY_STORY session=%d path=%s", n.Session, n.Path)
	}
}

func (m *hostModel) openStory(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		m.setNotice(fmt.Sprintf("story unreadable: %s", path))
		return
	}
	if len(data) > maxStoryBytes {
		data = data[:maxStoryBytes]
	}
	w, h := m.overlaySize()
	m.story = viewport.New(w, h)
	m.story.SetContent(string(data))
	m.storyPath = path
	m.storyOpen = true
}

func (m *hostModel) setNotice(text string) {
	m.notice = text
	m.noticeUntil = time.Now().Add(5 * time.Second)
}

func (m *hostModel) focusSlot(i int) {
	m.focus = i
	// Focusing acknowledges the highlight.
	m.highlights[i] = hlNone
	s := m.sessions[i]
	if !s.Spawned() {
		if err := s.EnsureSpawned(""); err != nil {
			m.setNotice(fmt.Sprintf("session %d: %v", i, err))
			logEvent("SPAWN_FAIL slot=%d err=%v", i, err)
		}
	}
}

func (m hostModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.storyOpen {
		switch msg.String() {
		case "esc", "q":
			m.storyOpen = false
			return m, nil
		}
		var cmd tea.Cmd
		m.story, cmd = m.story.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+q":
		return m, tea.Quit
	case "ctrl+o":
		m.focusSlot((m.focus + 1) % len(m.sessions))
		return m, nil
	case "ctrl+r":
		s := m.sessions[m.focus]
		if err := s.Restart(""); err != nil {
			m.setNotice(fmt.Sprintf("restart failed: %v", err))
			logEvent("RESTART_FAIL slot=%d err=%v", m.focus, err)
		}
		return m, nil
	}

	s := m.sessions[m.focus]
	if data := keyToBytes(msg); len(data) > 0 && s.Spawned() && !s.Dead() {
		if err := s.SendInput(data); err != nil {
			logEvent("SESSION_IO_ERROR slot=%d err=%v", s.Slot(), err)
			s.MarkDead()
		}
	}
	return m, nil
}

// keyToBytes translates a key event into the byte sequence a terminal
// would deliver for it.
func keyToBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyRunes, tea.KeySpace:
		var s string
		if msg.Type == tea.KeySpace {
			s = " "
		} else {
			s = string(msg.Runes)
		}
		if msg.Alt {
			return append([]byte{0x1b}, s...)
		}
		return []byte(s)
	case tea.KeyEnter:
		return []byte{'\r'}
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyTab:
		return []byte{'\t'}
	case tea.KeyEsc:
		return []byte{0x1b}
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	case tea.KeyHome:
		return []byte("\x1b[H")
	case tea.KeyEnd:
		return []byte("\x1b[F")
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	case tea.KeyPgUp:
		return []byte("\x1b[5~")
	case tea.KeyPgDown:
		return []byte("\x1b[6~")
	}
	// Control characters map straight through (ctrl+a..ctrl+z).
	if msg.Type > 0 && msg.Type < 32 {
		return []byte{byte(msg.Type)}
	}
	return nil
}

// tileColumns returns the column count for laying out n tiles.
func tileColumns(n, width int) int {
	if n <= 1 || width < 120 {
		return 1
	}
	if n <= 4 {
		return 2
	}
	return 3
}

// tileSize computes the inner geometry of one tile: the border eats two
// columns and two rows, the title line one more.
func tileSize(n, width, height int) (cols, rows int) {
	gridCols := tileColumns(n, width)
	gridRows := (n + gridCols - 1) / gridCols
	cols = width/gridCols - 2
	rows = height/gridRows - 3
	if cols < 10 {
		cols = 10
	}
	if rows < 3 {
		rows = 3
	}
	return cols, rows
}

// applyGeometry propagates the current window size to every session.
func (m *hostModel) applyGeometry() {
	if m.width == 0 || m.height == 0 {
		return
	}
	cols, rows := tileSize(len(m.sessions), m.width, m.height-1)
	for _, s := range m.sessions {
		s.Resize(cols, rows)
	}
	if m.storyOpen {
		w, h := m.overlaySize()
		m.story.Width = w
		m.story.Height = h
	}
}

func (m hostModel) overlaySize() (w, h int) {
	w = m.width * 3 / 4
	h = m.height * 3 / 4
	if w < 20 {
		w = 20
	}
	if h < 5 {
		h = 5
	}
	return w, h
}

func tileID(i int) string {
	return fmt.Sprintf("tile-%d", i)
}

// View implements tea.Model
func (m hostModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.storyOpen {
		return m.viewStory()
	}

	n := len(m.sessions)
	gridCols := tileColumns(n, m.width)
	cols, rows := tileSize(n, m.width, m.height-1)

	tiles := make([]string, n)
	for i, s := range m.sessions {
		tiles[i] = zone.Mark(tileID(i), m.renderTile(i, s, cols, rows))
	}

	var lines []string
	for i := 0; i < n; i += gridCols {
		end := i + gridCols
		if end > n {
			end = n
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, tiles[i:end]...))
	}
	body := lipgloss.JoinVertical(lipgloss.Left, lines...)

	footer := m.notice
	if footer == "" {
		footer = fmt.Sprintf("ctrl+o next · ctrl+r restart · ctrl+q quit · %d sessions", n)
	}
	// Scan strips the zone markers and records tile bounds for mouse
	// hit testing.
	return zone.Scan(body + "\n" + runewidth.Truncate(footer, m.width, "…"))
}

// renderTile regenerates the expensive emulator render only when the
// session's epoch moved past what was last presented; everything else
// (border, title) is cheap and composed every frame. Unspawned slots
// bypass the cache: a fresh slot sits at epoch 0 and a torn-down one
// keeps its old epoch, so the gate alone would never show their
// placeholder.
func (m hostModel) renderTile(i int, s *session.Session, cols, rows int) string {
	if !s.Spawned() || m.presented[i] < s.Epoch() {
		m.cache[i] = m.renderContent(s, cols, rows)
		m.presented[i] = s.Epoch()
	}

	border := borderIdle
	switch {
	case s.Spawned() && s.Dead():
		border = borderDead
	case m.highlights[i] == hlAwaiting:
		border = borderAwaiting
	case m.highlights[i] == hlDone:
		border = borderDone
	case i == m.focus:
		border = borderFocus
	}

	title := m.tileTitle(i, s, cols)
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(cols)

	return style.Render(title + "\n" + m.cache[i])
}

func (m hostModel) tileTitle(i int, s *session.Session, cols int) string {
	label := fmt.Sprintf("%d", i)
	if _, base := s.Cwd(); base != "" && s.Spawned() {
		label = fmt.Sprintf("%d:%s", i, base)
	}
	if s.ID() != 0 {
		label = fmt.Sprintf("%s #%d", label, s.ID())
	}
	return runewidth.Truncate(label, cols, "…")
}

func (m hostModel) renderContent(s *session.Session, cols, rows int) string {
	switch {
	case !s.Spawned():
		return centerText("not started (focus to spawn)", cols, rows)
	case s.Dead():
		return centerText("exited (ctrl+r to restart)", cols, rows)
	}
	if r, ok := s.Emu().(interface{ Render() string }); ok {
		return clampLines(r.Render(), rows)
	}
	return ""
}

func (m hostModel) viewStory() string {
	title := lipgloss.NewStyle().Bold(true).Render(runewidth.Truncate(m.storyPath, m.width-4, "…"))
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderFocus).
		Render(title + "\n" + m.story.View())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// centerText places one line of text in the middle of a cols x rows box.
func centerText(text string, cols, rows int) string {
	text = runewidth.Truncate(text, cols, "…")
	pad := (cols - runewidth.StringWidth(text)) / 2
	if pad < 0 {
		pad = 0
	}
	line := strings.Repeat(" ", pad) + text

	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i == rows/2 {
			b.WriteString(line)
		}
		if i < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// clampLines trims rendered content to at most rows lines.
func clampLines(s string, rows int) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	return strings.Join(lines, "\n")
}

// archon hosts multiple independent shell sessions, each on its own PTY,
// inside one terminal window. External tools report per-session status
// over a Unix-domain socket (see cmd/archon-notify).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/b/archon/pkg/config"
	"github.com/b/archon/pkg/notify"
	"github.com/b/archon/pkg/paths"
	"github.com/b/archon/pkg/session"
)

var (
	configFlag = flag.String("config", "", "config file path (default: "+paths.ConfigPath()+")")
	debugMode  = flag.Bool("debug", false, "enable debug logging to stderr")
)

var (
	crashLog *log.Logger
	eventLog *log.Logger
	debugLog *log.Logger
)

func configPathFlag() string {
	if *configFlag != "" {
		return *configFlag
	}
	return paths.ConfigPath()
}

func initCrashLog(pid int) {
	f, err := os.OpenFile(paths.CrashLogPath(pid), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		crashLog = log.New(os.Stderr, "[CRASH] ", log.LstdFlags)
		return
	}
	crashLog = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
}

func initEventLog(pid int) {
	f, err := os.OpenFile(paths.EventLogPath(pid), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		eventLog = log.New(os.Stderr, "[EVENT] ", log.LstdFlags)
		return
	}
	eventLog = log.New(f, "[event] ", log.LstdFlags|log.Lmicroseconds)
}

func logEvent(format string, args ...interface{}) {
	if eventLog != nil {
		eventLog.Printf(format, args...)
	}
}

func recoverAndLog(context string) {
	if r := recover(); r != nil {
		crashLog.Printf("=== CRASH in %s ===", context)
		crashLog.Printf("Panic: %v", r)
		crashLog.Printf("Stack trace:\n%s", debug.Stack())
		crashLog.Printf("=== END CRASH ===\n")
	}
}

// watchConfig reloads the host config when the file changes on disk.
func watchConfig(p *tea.Program, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	_ = watcher.Add(configPath)
	go func() {
		for {
			select {
			case event := <-watcher.Events:
				if event.Op&fsnotify.Write == fsnotify.Write {
					p.Send(reloadConfigMsg{})
				}
			case <-watcher.Errors:
				return
			}
		}
	}()
}

func main() {
	flag.Parse()

	pid := os.Getpid()
	initCrashLog(pid)
	initEventLog(pid)
	defer recoverAndLog("main")

	if *debugMode {
		debugLog = log.New(os.Stderr, "[archon] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		debugLog = log.New(os.Stderr, "", 0)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "archon must run in a terminal")
		os.Exit(1)
	}

	// Match tile borders across terminals the way the rest of the UI
	// stack expects.
	lipgloss.SetColorProfile(termenv.ANSI256)
	zone.NewGlobal()

	cfg, err := config.LoadConfig(configPathFlag())
	if err != nil && err != config.ErrNotFound {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err == config.ErrNotFound && *configFlag == "" {
		// First run: seed the default config so there is a file to edit
		// (and for the watcher to pick up).
		if _, derr := paths.EnsureConfigDir(); derr == nil {
			if werr := config.SaveConfig(paths.ConfigPath(), cfg); werr == nil {
				logEvent("CONFIG_INIT path=%s", paths.ConfigPath())
			}
		}
	}

	sockPath := paths.NotifySocketPath(pid)
	queue := &notify.Queue{}
	listener := notify.NewListener(sockPath, queue, cfg.Buffers.NotifyMaxLineBytes)
	if err := listener.Start(); err != nil {
		log.Fatalf("Failed to start notification listener: %v", err)
	}
	defer listener.Stop()
	debugLog.Printf("Notification socket at %s", sockPath)
	logEvent("HOST_START pid=%d sessions=%d sock=%s", pid, cfg.Sessions, sockPath)

	var ids session.IDAllocator
	exits := make(chan session.ExitEvent, cfg.Sessions*2)
	sessions := make([]*session.Session, cfg.Sessions)
	for i := range sessions {
		sessions[i] = session.New(session.Params{
			Slot:             i,
			Shell:            cfg.Shell,
			NotifySock:       sockPath,
			Cols:             80,
			Rows:             24,
			IDs:              &ids,
			Exits:            exits,
			CwdPollInterval:  cfg.CwdPollInterval(),
			WriteShrinkBytes: cfg.Buffers.WriteShrinkBytes,
			ReadChunkBytes:   cfg.Buffers.ReadChunkBytes,
		})
	}
	defer func() {
		for _, s := range sessions {
			s.Deinit()
		}
	}()

	// First slot spawns eagerly; the rest wait until focused, unless
	// configured otherwise.
	eager := 1
	if cfg.Behavior.SpawnAllAtStart {
		eager = len(sessions)
	}
	for i := 0; i < eager; i++ {
		if err := sessions[i].EnsureSpawned(""); err != nil {
			logEvent("SPAWN_FAIL slot=%d err=%v", i, err)
			debugLog.Printf("spawn session %d: %v", i, err)
		}
	}

	model := newHostModel(cfg, sessions, exits, queue)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	watchConfig(p, configPathFlag())

	if _, err := p.Run(); err != nil {
		crashLog.Printf("program error: %v", err)
		os.Exit(1)
	}
	logEvent("HOST_STOP pid=%d notifications=%d", pid, listener.Accepted())
}

// archon-notify sends a session state update to the Archon host that
// spawned the current shell. It is meant to be wired into agent / tool
// hooks running inside a session:
//
//	archon-notify start              # clear highlight, mark running
//	archon-notify awaiting_approval  # attention border (request)
//	archon-notify done               # completed border
//	archon-notify story /tmp/a.md    # open a story document in the host
//
// The target session and socket come from ARCHON_SESSION_ID and
// ARCHON_NOTIFY_SOCK, which the host exports into every session. Outside
// a session the command is a silent no-op, and delivery failures are
// swallowed: a notification must never break the tool sending it.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/b/archon/pkg/ptyproc"
)

type statusMessage struct {
	Session int    `json:"session"`
	State   string `json:"state"`
}

type storyMessage struct {
	Session int    `json:"session"`
	Type    string `json:"type"`
	Path    string `json:"path"`
}

var validStates = map[string]bool{
	"start":             true,
	"awaiting_approval": true,
	"done":              true,
}

// buildMessage turns command arguments into one wire line.
func buildMessage(session int, args []string) ([]byte, error) {
	if len(args) == 2 && args[0] == "story" {
		return json.Marshal(storyMessage{Session: session, Type: "story", Path: args[1]})
	}
	if len(args) == 1 && validStates[args[0]] {
		return json.Marshal(statusMessage{Session: session, State: args[0]})
	}
	return nil, fmt.Errorf("invalid arguments: %v", args)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s start|awaiting_approval|done\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s story <path>\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sessionStr := os.Getenv(ptyproc.SessionIDEnv)
	sockPath := os.Getenv(ptyproc.NotifySockEnv)
	if sessionStr == "" || sockPath == "" {
		// Not inside an Archon session.
		return
	}
	session, err := strconv.Atoi(sessionStr)
	if err != nil || session < 0 {
		return
	}

	msg, err := buildMessage(session, os.Args[1:])
	if err != nil {
		usage()
		os.Exit(1)
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return
	}
	defer conn.Close()
	_, _ = conn.Write(append(msg, '\n'))
}

// Package notify receives externally-triggered session events over a
// Unix-domain socket and hands them to the frame loop through a
// mutex-guarded queue.
//
// The protocol is one line-delimited JSON object per connection:
//
//	{"session": 0, "state": "done"}
//	{"session": 2, "type": "story", "path": "/tmp/a.md"}
//
// There is no acknowledgment. Malformed payloads are dropped silently.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Kind distinguishes the two event shapes on the wire.
type Kind int

const (
	// KindStatus is a session status change (highlight state).
	KindStatus Kind = iota
	// KindStory is a content event carrying a document path.
	KindStory
)

// Status is the session highlight state carried by a status event.
type Status int

const (
	StatusStart Status = iota
	StatusAwaitingApproval
	StatusDone
)

var statusNames = map[string]Status{
	"start":             StatusStart,
	"awaiting_approval": StatusAwaitingApproval,
	"done":              StatusDone,
}

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusStart:
		return "start"
	case StatusAwaitingApproval:
		return "awaiting_approval"
	case StatusDone:
		return "done"
	}
	return "unknown"
}

// Notification is one decoded event. Immutable once constructed by the
// listener; consumed exactly once by the frame loop.
type Notification struct {
	Session int
	Kind    Kind
	Status  Status // valid when Kind == KindStatus
	Path    string // valid when Kind == KindStory
}

// errDrop marks payloads that parse but do not describe a valid event.
var errDrop = errors.New("notify: payload dropped")

// wireMessage mirrors the JSON shape. Session is a pointer so a missing
// field is distinguishable from session 0.
type wireMessage struct {
	Session *int   `json:"session"`
	State   string `json:"state"`
	Type    string `json:"type"`
	Path    string `json:"path"`
}

// ParseLine decodes one wire line into a Notification. Any malformed or
// out-of-contract payload returns an error; callers drop those silently.
func ParseLine(line []byte) (Notification, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Notification{}, errDrop
	}
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Notification{}, errDrop
	}
	if msg.Session == nil || *msg.Session < 0 {
		return Notification{}, errDrop
	}

	if msg.Type == "story" {
		if msg.Path == "" {
			return Notification{}, errDrop
		}
		return Notification{Session: *msg.Session, Kind: KindStory, Path: msg.Path}, nil
	}
	if st, ok := statusNames[msg.State]; ok {
		return Notification{Session: *msg.Session, Kind: KindStatus, Status: st}, nil
	}
	return Notification{}, errDrop
}

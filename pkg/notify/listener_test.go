package notify

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func startTestListener(t *testing.T, maxLine int) (*Listener, *Queue) {
	t.Helper()
	// Socket paths have a low length limit; keep it short.
	sock := filepath.Join(t.TempDir(), "n.sock")
	var q Queue
	l := NewListener(sock, &q, maxLine)
	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(l.Stop)
	return l, &q
}

func send(t *testing.T, path, payload string) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitDrain polls the queue until it holds want items or the deadline hits.
func waitDrain(t *testing.T, q *Queue, want int) []Notification {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var got []Notification
	for time.Now().Before(deadline) {
		got = append(got, q.Drain()...)
		if len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notifications, got %d", want, len(got))
	return nil
}

func TestListener_DeliversInOrder(t *testing.T) {
	l, q := startTestListener(t, 0)

	send(t, l.Path(), `{"session":0,"state":"start"}`+"\n")
	send(t, l.Path(), `{"session":1,"state":"awaiting_approval"}`+"\n")
	send(t, l.Path(), `{"session":2,"type":"story","path":"/tmp/a.md"}`+"\n")

	got := waitDrain(t, q, 3)
	if got[0].Session != 0 || got[0].Status != StatusStart {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Session != 1 || got[1].Status != StatusAwaitingApproval {
		t.Errorf("second = %+v", got[1])
	}
	if got[2].Kind != KindStory || got[2].Path != "/tmp/a.md" {
		t.Errorf("third = %+v", got[2])
	}
}

func TestListener_NoTrailingNewline(t *testing.T) {
	l, q := startTestListener(t, 0)
	send(t, l.Path(), `{"session":4,"state":"done"}`)

	got := waitDrain(t, q, 1)
	if got[0].Session != 4 || got[0].Status != StatusDone {
		t.Errorf("got %+v", got[0])
	}
}

func TestListener_DropsMalformed(t *testing.T) {
	l, q := startTestListener(t, 0)

	send(t, l.Path(), "not json at all\n")
	send(t, l.Path(), `{"session":-1,"state":"done"}`+"\n")
	send(t, l.Path(), `{"session":0,"state":"done"}`+"\n")

	got := waitDrain(t, q, 1)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want only the valid one", len(got))
	}
	if got[0].Session != 0 || got[0].Status != StatusDone {
		t.Errorf("got %+v", got[0])
	}
}

func TestListener_CapsOversizedPayload(t *testing.T) {
	l, q := startTestListener(t, 128)

	send(t, l.Path(), strings.Repeat("a", 4096))
	send(t, l.Path(), `{"session":1,"state":"done"}`+"\n")

	got := waitDrain(t, q, 1)
	if len(got) != 1 || got[0].Session != 1 {
		t.Fatalf("oversized payload leaked through: %+v", got)
	}
}

func TestListener_StopIsIdempotent(t *testing.T) {
	l, _ := startTestListener(t, 0)
	l.Stop()
	l.Stop()
}

func TestListener_StopRemovesSocket(t *testing.T) {
	l, _ := startTestListener(t, 0)
	l.Stop()
	if _, err := net.Dial("unix", l.Path()); err == nil {
		t.Fatal("socket still accepting after Stop")
	}
}

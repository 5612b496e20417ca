package notify

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// acceptInterval bounds how long a shutdown request can go unobserved.
	acceptInterval = 100 * time.Millisecond
	// connReadTimeout bounds how long one misbehaving sender can stall
	// the listener goroutine.
	connReadTimeout = 2 * time.Second
	// DefaultMaxLineBytes caps the per-connection read buffer.
	DefaultMaxLineBytes = 4096
)

// Listener accepts tool connections on a Unix-domain socket from a
// background goroutine and pushes decoded notifications into a Queue.
// It never blocks the frame loop: the accept loop re-checks a stop flag
// on a short deadline instead of parking indefinitely.
type Listener struct {
	path     string
	maxLine  int
	queue    *Queue
	ln       *net.UnixListener
	stop     atomic.Bool
	wg       sync.WaitGroup
	accepted atomic.Uint64 // connections handled, for the event log
}

// NewListener prepares a listener for the given socket path. maxLine <= 0
// selects DefaultMaxLineBytes.
func NewListener(path string, queue *Queue, maxLine int) *Listener {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &Listener{path: path, maxLine: maxLine, queue: queue}
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Accepted returns the number of connections handled so far.
func (l *Listener) Accepted() uint64 { return l.accepted.Load() }

// Start binds the socket and launches the accept goroutine.
func (l *Listener) Start() error {
	// Remove a stale socket from a previous run of the same pid.
	os.Remove(l.path)

	addr, err := net.ResolveUnixAddr("unix", l.path)
	if err != nil {
		return fmt.Errorf("notify: resolve %s: %w", l.path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("notify: listen %s: %w", l.path, err)
	}
	l.ln = ln

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Stop asks the accept goroutine to exit, waits for it, and removes the
// socket. Safe to call more than once.
func (l *Listener) Stop() {
	if l.stop.Swap(true) {
		return
	}
	if l.ln != nil {
		l.ln.Close()
	}
	l.wg.Wait()
	os.Remove(l.path)
}

// acceptLoop runs on the listener goroutine. Connections are handled
// inline so queue order matches accept order.
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for !l.stop.Load() {
		l.ln.SetDeadline(time.Now().Add(acceptInterval))
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if l.stop.Load() {
				return
			}
			continue
		}
		l.accepted.Add(1)
		l.handleConn(conn)
	}
}

// handleConn reads at most one line from the connection, decodes it, and
// queues the result. Anything unparseable is dropped without a response.
func (l *Listener) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	line, ok := l.readLine(conn)
	if !ok {
		return
	}
	n, err := ParseLine(line)
	if err != nil {
		return
	}
	l.queue.Push(n)
}

// readLine reads until a newline, EOF, read error, or the hard cap.
// It reports false when the sender exceeded the cap without completing
// a line, so oversized payloads never reach the parser.
func (l *Listener) readLine(conn *net.UnixConn) ([]byte, bool) {
	conn.SetReadDeadline(time.Now().Add(connReadTimeout))

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > l.maxLine {
				return nil, false
			}
			if i := bytes.IndexByte(buf, '\n'); i >= 0 {
				return buf[:i], true
			}
		}
		if err != nil {
			// EOF without a trailing newline still counts as one line;
			// resets and timeouts end the read the same way.
			return buf, len(buf) > 0
		}
	}
}

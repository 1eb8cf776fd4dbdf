package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Client talks to one holder process over its Unix-domain socket.
type Client struct {
	dir string
}

// Connect opens a client against the session rooted at dir. It does not
// dial the socket itself — each request dials fresh, since a holder serves
// one request per connection.
func Connect(dir string) *Client {
	return &Client{dir: dir}
}

// Exec runs command as a shell line against the session.
func (c *Client) Exec(command string, timeout time.Duration) (Response, error) {
	return c.roundTrip(Request{Op: OpExec, Command: command, TimeoutMs: timeout.Milliseconds()})
}

// Status asks the holder for its current state.
func (c *Client) Status() (Response, error) {
	return c.roundTrip(Request{Op: OpStatus})
}

// End asks the holder to terminate and clean up its socket.
func (c *Client) End() (Response, error) {
	return c.roundTrip(Request{Op: OpEnd})
}

func (c *Client) roundTrip(req Request) (Response, error) {
	conn, err := net.Dial("unix", socketPath(c.dir))
	if err != nil {
		return Response{}, fmt.Errorf("connect to session: %w", err)
	}
	defer conn.Close()

	data, err := encode(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, fmt.Errorf("session holder closed connection without responding")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("session error: %s", resp.Error)
	}
	return resp, nil
}

// IsAlive reports whether the session rooted at dir has a live holder.
// A socket file can outlive its holder (a crash skips the deferred
// os.Remove), so liveness is checked against the PID recorded in
// metadata, not the socket file's mere existence.
func IsAlive(dir string) bool {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return false
	}
	if meta.Status == StatusTerminated {
		return false
	}
	return processAlive(meta.HolderPID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Reap removes a dead session's on-disk socket and marks its metadata
// terminated. Callers should confirm !IsAlive(dir) first.
func Reap(dir string) error {
	os.Remove(socketPath(dir))
	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil
	}
	meta.Status = StatusTerminated
	return WriteMetadata(dir, meta)
}

// waitForSocket blocks until the holder's socket file appears in dir, or
// the startup window elapses. It watches dir rather than polling: the
// holder binds its socket and returns almost immediately, and a 20ms poll
// interval either wastes cycles or adds needless latency to every session
// start.
func waitForSocket(dir string) error {
	sock := socketPath(dir)
	if _, err := os.Stat(sock); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create session socket watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch session directory: %w", err)
	}

	// The socket may have been created in the gap between the Stat above
	// and Add registering the watch; check again before waiting on events.
	if _, err := os.Stat(sock); err == nil {
		return nil
	}

	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("session socket watcher closed unexpectedly")
			}
			if event.Name == sock && (event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if ok && err != nil {
				return fmt.Errorf("watch session directory: %w", err)
			}
		case <-timeout.C:
			return fmt.Errorf("session holder did not bind its socket within the startup window")
		}
	}
}

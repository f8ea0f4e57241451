// Package notify implements the Notification Receiver of the readiness
// protocol: a unixgram datagram server parsing newline-separated
// KEY=VALUE messages and routing them to the owning unit by the sender's
// peer credentials. Built on the same pattern as pkg/process's wait
// goroutine: a narrow background read loop that only ever writes to a
// channel the event loop drains -- this package never touches
// restarter.Core state directly.
package notify

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
)

// MessageKind discriminates the three datagram shapes this package
// recognises.
type MessageKind int

const (
	Ready MessageKind = iota
	Status
	MainPID
)

// Message is one parsed notification datagram, keyed by the sending
// process's PID (recovered via SO_PEERCRED).
type Message struct {
	PID    int
	Kind   MessageKind
	Status string
	Pid    int // the MAINPID value, only meaningful when Kind == MainPID
}

// Receiver is a unixgram socket server. The read loop runs on its own
// goroutine -- the one concession allowed beyond the event loop itself
// -- and only ever sends parsed Messages onto messages; nothing in this
// package calls into restarter.Core.
type Receiver struct {
	logger   logging.Logger
	conn     *net.UnixConn
	messages chan Message
	done     chan struct{}
}

// Listen opens a unixgram socket at path, removing any stale socket file
// left behind by a previous run.
func Listen(path string, logger logging.Logger) (*Receiver, error) {
	_ = unix.Unlink(path)

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errors.NewNetworkError("failed to open notify socket", err).WithContext("path", path)
	}

	r := &Receiver{
		logger:   logger,
		conn:     conn,
		messages: make(chan Message, 32),
		done:     make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Messages returns the channel the event loop selects on.
func (r *Receiver) Messages() <-chan Message {
	return r.messages
}

// Close stops the read loop and closes the socket. The socket file stays
// on disk until the next Listen on the same path removes it.
func (r *Receiver) Close() error {
	close(r.done)
	return r.conn.Close()
}

func (r *Receiver) run() {
	buf := make([]byte, 4096)
	for {
		n, oob, _, _, err := r.conn.ReadMsgUnix(buf, make([]byte, unix.CmsgSpace(0)))
		_ = oob
		if err != nil {
			select {
			case <-r.done:
				return
			default:
				r.logger.Warnf("Notify receiver read failed, error: %v", err)
				return
			}
		}
		pid, err := peerPID(r.conn)
		if err != nil {
			r.logger.Warnf("Failed to resolve notify datagram sender, error: %v", err)
			continue
		}
		for _, msg := range parse(pid, buf[:n]) {
			r.messages <- msg
		}
	}
}

// peerPID resolves SO_PEERCRED on the connected socket to recover the
// sending process's PID, keying messages by peer credentials.
// SO_PEERCRED on a connectionless unixgram socket reflects the credentials
// of the most recent sender, which is sufficient here because reads are
// processed one datagram at a time on a single goroutine.
func peerPID(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, errors.NewInternalError("failed to get raw notify connection", err)
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, credErr
	}
	return int(cred.Pid), nil
}

// parse splits a datagram into newline-delimited KEY=VALUE lines,
// producing one Message per recognised key.
func parse(pid int, data []byte) []Message {
	var out []Message
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "READY":
			if value == "1" {
				out = append(out, Message{PID: pid, Kind: Ready})
			}
		case "STATUS":
			out = append(out, Message{PID: pid, Kind: Status, Status: value})
		case "MAINPID":
			if n, err := strconv.Atoi(value); err == nil {
				out = append(out, Message{PID: pid, Kind: MainPID, Pid: n})
			}
		}
	}
	return out
}

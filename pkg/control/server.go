package control

import (
	"net"
	"os"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
)

// inbox is the slice of eventloop.Loop a Server needs: a thread-safe way
// to queue a note for the single dispatching goroutine. Kept as an
// interface, the same test-seam idiom eventloop.Loop itself uses for
// notify.Receiver, so tests don't need a real Loop.
type inbox interface {
	PostAdmin(note domain.Note)
}

// Server accepts connections on a Unix-domain socket and relays every
// Note a client sends as an admin note onto the event loop's inbox --
// the administrative CLI interface over one concrete transport
// (cmd/cli/svcmgrctl is the client).
type Server struct {
	logger   logging.Logger
	listener net.Listener
	loop     inbox
}

// Listen opens a Unix-domain socket at path, removing any stale socket
// left by a previous run (the same idiom notify.Receiver's
// ListenUnixgram follows).
func Listen(path string, loop inbox, logger logging.Logger) (*Server, error) {
	_ = os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Server{logger: logger, listener: listener, loop: loop}, nil
}

// Serve accepts connections until the listener is closed, each on its
// own goroutine; every goroutine only ever calls Server.loop.PostAdmin,
// never touching Graph/Restarter/Bus state directly.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	codec := NewCodec(conn)
	for {
		note, err := codec.ReadNote()
		if err != nil {
			return
		}
		if note.Kind != domain.NoteKindAdminReq {
			s.logger.Warnf("Control connection sent non-admin note, kind: %s", note.Kind)
			continue
		}
		s.loop.PostAdmin(note)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

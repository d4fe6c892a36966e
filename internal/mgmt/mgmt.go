// Package mgmt implements the management interface (a Unix domain
// datagram socket) used to flush or dump the route table and neighbor
// table from outside the process.
package mgmt

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Command names the four supported management requests.
type Command int

const (
	CmdFlushTable Command = iota
	CmdFlushNeighbors
	CmdGetTable
	CmdGetNeighbors
)

// ParseCommand decodes a request body holding one ASCII command digit
// ("0" to "3", surrounding whitespace ignored) into a Command. The body
// is not split on colons; any other body, including one with further
// colon-separated fields, is rejected.
func ParseCommand(req string) (Command, error) {
	req = strings.TrimSpace(req)
	switch req {
	case "0":
		return CmdFlushTable, nil
	case "1":
		return CmdFlushNeighbors, nil
	case "2":
		return CmdGetTable, nil
	case "3":
		return CmdGetNeighbors, nil
	default:
		return 0, fmt.Errorf("mgmt: unknown command %q", req)
	}
}

// Backend is implemented by whatever owns the route and neighbor tables;
// daemon.Node satisfies it.
type Backend interface {
	FlushTable()
	FlushNeighbors()
	DumpTable() string
	DumpNeighbors() string
}

// Server listens on a Unix domain datagram socket and dispatches each
// received datagram to backend, writing the reply back to the same
// socket address.
type Server struct {
	conn    *net.UnixConn
	path    string
	backend Backend
}

// Listen creates (replacing any stale file) a Unix domain datagram
// socket at path.
func Listen(path string, backend Backend) (*Server, error) {
	_ = os.Remove(path)
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("mgmt: listen %s: %w", path, err)
	}
	return &Server{conn: conn, path: path, backend: backend}, nil
}

// Serve blocks, handling one datagram at a time, until the socket is
// closed.
func (s *Server) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			return err
		}
		reply := s.handle(string(buf[:n]))
		if reply == "" || addr == nil || addr.Name == "" {
			continue
		}
		_, _ = s.conn.WriteToUnix([]byte(reply), addr)
	}
}

func (s *Server) handle(req string) string {
	cmd, err := ParseCommand(req)
	if err != nil {
		return err.Error()
	}
	switch cmd {
	case CmdFlushTable:
		s.backend.FlushTable()
		return "ok"
	case CmdFlushNeighbors:
		s.backend.FlushNeighbors()
		return "ok"
	case CmdGetTable:
		return s.backend.DumpTable()
	case CmdGetNeighbors:
		return s.backend.DumpNeighbors()
	default:
		return ""
	}
}

// Close removes the socket and its backing file.
func (s *Server) Close() error {
	err := s.conn.Close()
	_ = os.Remove(s.path)
	return err
}

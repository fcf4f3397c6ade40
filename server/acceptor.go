package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"syscall"
)

// Listen opens a TCP listener on port with SO_REUSEADDR set, so a
// restarted server can rebind immediately instead of waiting out
// TIME_WAIT.
func Listen(port uint16) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: int(port)}
	return lc.Listen(context.Background(), "tcp", addr.String())
}

// Serve accepts connections on listener until ctx is cancelled or Accept
// returns a permanent error. Each accepted connection is registered with
// the server and handed its socket options before being added to the
// connection table.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("server: accept failed: %w", err)
		}
		s.acceptConn(conn)
	}
}

// peerChecker is implemented by connections that can report, without
// consuming application data, whether the remote peer has gone away. Real
// accepted TCP connections are checked through peekConnected below; test
// doubles can implement this directly to exercise the monitor's poll
// without a real socket.
type peerChecker interface {
	peerConnected() bool
}

// peekConnected reports whether raw's peer is still there, via a
// non-blocking, MSG_PEEK receive of one byte. A read that returns zero
// bytes with no
// error means the peer closed the connection; EAGAIN/EWOULDBLOCK means
// there is simply nothing to read yet, which is the common case and does
// not indicate disconnection; any other error is treated as a lost peer.
// The peek never consumes the byte, so it cannot interfere with whatever
// the peer may have actually sent.
func (s *Server) peekConnected(raw connWriter) bool {
	if pc, ok := raw.(peerChecker); ok {
		return pc.peerConnected()
	}
	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		// Not a real socket (and not a test double implementing peerChecker):
		// nothing to poll, so don't expire on a guess.
		return true
	}
	rc, err := tcpConn.SyscallConn()
	if err != nil {
		return true
	}
	var buf [1]byte
	connected := true
	ctrlErr := rc.Read(func(fd uintptr) bool {
		n, _, recvErr := syscall.Recvfrom(int(fd), buf[:], syscall.MSG_PEEK|syscall.MSG_DONTWAIT)
		switch {
		case recvErr == syscall.EAGAIN || recvErr == syscall.EWOULDBLOCK:
			connected = true
		case recvErr != nil:
			connected = false
		case n == 0:
			connected = false
		default:
			connected = true
		}
		return true
	})
	if ctrlErr != nil {
		return true
	}
	return connected
}

// acceptConn applies socket options and registers the connection. In
// synchronous mode (the default) it stays pending until the next
// CommitConnections call; in async mode it is active immediately.
func (s *Server) acceptConn(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			log.Printf("server: failed to disable Nagle's algorithm: %v", err)
		}
		if s.settings.ClientSendBufferSize > 0 {
			if err := tcpConn.SetWriteBuffer(s.settings.ClientSendBufferSize); err != nil {
				log.Printf("server: failed to set write buffer size: %v", err)
			}
		}
	}

	id := s.addConnection(conn)
	log.Printf("server: accepted connection %d from %s", id, conn.RemoteAddr())
}

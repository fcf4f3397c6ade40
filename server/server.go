// Package server implements the broadcast server: it fans every shape and
// resource operation out to every connected, active client, and accepts
// new TCP connections through a monitor that can gate activation to frame
// boundaries so late joiners never see a partially-applied frame.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scenewire/scenewire/client"
	"github.com/scenewire/scenewire/collate"
	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/shape"
	"github.com/scenewire/scenewire/wire"
)

// connWriter is the subset of net.Conn a connection needs; satisfied by
// *net.TCPConn and, in tests, anything with a Write/Close.
type connWriter interface {
	Write(b []byte) (int, error)
	Close() error
}

type connState int

const (
	connPending connState = iota
	connActive
	connExpired
)

type connection struct {
	id      uint32
	raw     connWriter
	encoder *client.Encoder
	state   connState
}

// Server fans shape/resource operations out to every active client. Its
// client list is guarded by a RWMutex: broadcasts take a read lock (many
// broadcasts can enumerate concurrently; none mutate the map), while
// connect/disconnect/commit take a write lock.
type Server struct {
	settings Settings

	mu     sync.RWMutex
	conns  map[uint32]*connection
	nextID uint32

	malformedPackets int64
	bytesSent        int64
}

// NewServer creates a Server with no connections yet; call Serve with a
// listener from Listen to start accepting connections.
func NewServer(settings Settings) *Server {
	return &Server{
		settings: settings,
		conns:    make(map[uint32]*connection),
	}
}

// Settings returns the server's configuration.
func (s *Server) Settings() Settings { return s.settings }

// addConnection registers a newly accepted raw connection in the pending
// (synchronous) or active (asynchronous) state, per Settings.Async.
func (s *Server) addConnection(raw connWriter) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	c := &connection{
		id:      id,
		raw:     raw,
		encoder: client.NewEncoder(raw, s.settings.clientSettings()),
		state:   connPending,
	}
	if s.settings.Async {
		c.state = connActive
		s.sendServerInfoLocked(c)
	}
	s.conns[id] = c
	return id
}

func (s *Server) sendServerInfoLocked(c *connection) {
	if _, err := c.encoder.SendServerInfo(message.DefaultServerInfo()); err != nil {
		log.Printf("server: failed to send server info to connection %d: %v", c.id, err)
	}
}

// CommitConnections promotes every pending connection to active, sending
// each its server info handshake, and returns the newly active connection
// IDs. Call this between frames in synchronous mode so a new client's first
// broadcast is the next full frame, never a half-applied one.
func (s *Server) CommitConnections() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var committed []uint32
	for id, c := range s.conns {
		if c.state == connPending {
			c.state = connActive
			s.sendServerInfoLocked(c)
			committed = append(committed, id)
		}
	}
	return committed
}

// ExpireConnection marks a connection expired and closes it; a broadcast
// that hits a write error on a connection calls this rather than letting
// the same dead connection fail on every subsequent frame.
func (s *Server) ExpireConnection(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok || c.state == connExpired {
		return
	}
	c.state = connExpired
	_ = c.raw.Close()
}

// MonitorConnections runs the connection monitor's periodic disconnection
// poll: every interval, it checks each active connection's
// socket for a lost peer and expires any it finds, independently of
// whatever broadcast traffic is or isn't in flight. Without this, a client
// that disconnects while idle — nothing queued to send it between two
// frames — is never detected, since the only other path to
// ExpireConnection is a write failure inside broadcast/SendRaw. Run this in
// its own goroutine (the monitor's asynchronous mode); it returns when ctx
// is cancelled.
func (s *Server) MonitorConnections(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollLiveness()
		}
	}
}

// pollLiveness checks every active connection once and expires any whose
// peer the poll finds gone.
func (s *Server) pollLiveness() {
	s.mu.RLock()
	type target struct {
		id  uint32
		raw connWriter
	}
	targets := make([]target, 0, len(s.conns))
	for id, c := range s.conns {
		if c.state == connActive {
			targets = append(targets, target{id, c.raw})
		}
	}
	s.mu.RUnlock()

	for _, t := range targets {
		if !s.peekConnected(t.raw) {
			log.Printf("server: connection %d lost (monitor poll)", t.id)
			s.ExpireConnection(t.id)
		}
	}
}

// WaitForConnection blocks until at least one connection has been accepted
// (pending or active) or timeout elapses, reporting whether one arrived. It
// only observes the connection table; the accept loop itself runs in Serve's
// goroutine regardless.
func (s *Server) WaitForConnection(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.RLock()
		n := 0
		for _, c := range s.conns {
			if c.state != connExpired {
				n++
			}
		}
		s.mu.RUnlock()
		if n > 0 {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close expires and drops every connection, pending or active. Subsequent
// broadcasts reach no one; the accept loop (if running) keeps accepting
// until its context is cancelled.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conns {
		if c.state != connExpired {
			_ = c.raw.Close()
		}
		delete(s.conns, id)
	}
}

// RemoveExpired drops every expired connection from the table, returning
// how many were removed. Call this periodically so a long-running server
// doesn't accumulate dead entries.
func (s *Server) RemoveExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.conns {
		if c.state == connExpired {
			delete(s.conns, id)
			removed++
		}
	}
	return removed
}

// ActiveClientCount returns the number of active (committed, non-expired)
// connections.
func (s *Server) ActiveClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.conns {
		if c.state == connActive {
			n++
		}
	}
	return n
}

// MalformedPacketCount returns the running count of inbound packets this
// server rejected as malformed (bad marker or CRC).
func (s *Server) MalformedPacketCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.malformedPackets
}

// BytesSent returns the running total of bytes successfully written across
// all clients.
func (s *Server) BytesSent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytesSent
}

// broadcast runs op against every active client's encoder and aggregates
// the result. A client whose op fails is not silently skipped: if any client
// fails, the returned count is negative (the successful byte counts plus one
// per failed client, negated), so a partial failure is visible in the
// returned count. A failed client is expired so it is not retried on a later
// call.
func (s *Server) broadcast(op func(*client.Encoder) (int, error)) int {
	s.mu.RLock()
	type target struct {
		id      uint32
		encoder *client.Encoder
	}
	targets := make([]target, 0, len(s.conns))
	for id, c := range s.conns {
		if c.state == connActive {
			targets = append(targets, target{id, c.encoder})
		}
	}
	s.mu.RUnlock()

	total := 0
	failures := 0
	var sent int64
	for _, t := range targets {
		n, err := op(t.encoder)
		if err != nil {
			log.Printf("server: broadcast to connection %d failed: %v", t.id, err)
			s.ExpireConnection(t.id)
			failures++
			continue
		}
		total += n
		sent += int64(n)
	}

	if sent > 0 {
		s.mu.Lock()
		s.bytesSent += sent
		s.mu.Unlock()
	}
	if failures > 0 {
		return -(total + failures)
	}
	return total
}

// CreateShape broadcasts a shape's creation to every active client.
func (s *Server) CreateShape(sh shape.Shape) int {
	return s.broadcast(func(e *client.Encoder) (int, error) { return e.Create(sh) })
}

// UpdateShape broadcasts a persistent shape's update to every active
// client.
func (s *Server) UpdateShape(sh shape.Shape) int {
	return s.broadcast(func(e *client.Encoder) (int, error) { return e.Update(sh) })
}

// DestroyShape broadcasts a shape's destruction to every active client.
func (s *Server) DestroyShape(sh shape.Shape) int {
	return s.broadcast(func(e *client.Encoder) (int, error) { return e.Destroy(sh) })
}

// UpdateFrame advances every active client to a new frame, flushing each
// one's accumulated collated packet. dt is in seconds; each client converts
// it to its negotiated time unit.
func (s *Server) UpdateFrame(dt float64, persist bool) int {
	return s.broadcast(func(e *client.Encoder) (int, error) { return e.UpdateFrame(dt, persist) })
}

// ReferenceResource references res on every active client, enqueuing its
// transfer on any client seeing it for the first time. The aggregate of the
// per-client reference counts is returned; per-client counts are independent
// (a client connecting mid-stream starts every resource at zero).
func (s *Server) ReferenceResource(res resource.Resource) int {
	return s.broadcastCount(func(e *client.Encoder) (int, error) { return e.ReferenceResource(res), nil })
}

// ReleaseResource releases res on every active client, emitting a resource
// destroy on any client whose count reaches zero.
func (s *Server) ReleaseResource(res resource.Resource) int {
	return s.broadcastCount(func(e *client.Encoder) (int, error) { return e.ReleaseResource(res) })
}

// broadcastCount fans op out like broadcast but aggregates reference counts
// rather than byte counts, so it leaves the bytes-sent total alone.
func (s *Server) broadcastCount(op func(*client.Encoder) (int, error)) int {
	s.mu.RLock()
	type target struct {
		id      uint32
		encoder *client.Encoder
	}
	targets := make([]target, 0, len(s.conns))
	for id, c := range s.conns {
		if c.state == connActive {
			targets = append(targets, target{id, c.encoder})
		}
	}
	s.mu.RUnlock()

	total := 0
	for _, t := range targets {
		n, err := op(t.encoder)
		if err != nil {
			log.Printf("server: resource operation on connection %d failed: %v", t.id, err)
			s.ExpireConnection(t.id)
			total -= 1
			continue
		}
		total += n
	}
	return total
}

// UpdateTransfers drains each active client's pending resource transfers,
// within byteBudget per client.
func (s *Server) UpdateTransfers(byteBudget int) int {
	return s.broadcast(func(e *client.Encoder) (int, error) { return e.UpdateTransfers(byteBudget) })
}

// SendRaw broadcasts an already-finalised packet verbatim to every active
// client, bypassing each client's own collation — used for packets (like
// category definitions) that are identical for every client and cheaper to
// finalise once.
func (s *Server) SendRaw(data []byte) int {
	total := 0
	s.mu.RLock()
	targets := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		if c.state == connActive {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	var sent int64
	for _, c := range targets {
		n, err := c.raw.Write(data)
		if err != nil {
			log.Printf("server: raw send to connection %d failed: %v", c.id, err)
			s.ExpireConnection(c.id)
			total -= 1
			continue
		}
		total += n
		sent += int64(n)
	}
	if sent > 0 {
		s.mu.Lock()
		s.bytesSent += sent
		s.mu.Unlock()
	}
	return total
}

// SendCollated accepts a caller-assembled CollatedPacket (for example, one
// received from an upstream relay) and re-broadcasts its inner packets
// individually to every active client, so each client's own
// collation/compression policy is applied rather than forwarding someone
// else's framing verbatim.
func (s *Server) SendCollated(data []byte) (int, error) {
	r, err := wire.NewReader(data)
	if err != nil {
		s.mu.Lock()
		s.malformedPackets++
		s.mu.Unlock()
		return 0, fmt.Errorf("server: malformed collated packet: %w", err)
	}
	if r.RoutingID() != wire.RoutingCollated {
		return 0, fmt.Errorf("server: SendCollated given a non-collated packet (routing %d)", r.RoutingID())
	}

	body, err := collate.Decode(r)
	if err != nil {
		s.mu.Lock()
		s.malformedPackets++
		s.mu.Unlock()
		return 0, fmt.Errorf("server: failed to decode collated packet: %w", err)
	}

	inner, err := collate.SplitPackets(body)
	if err != nil {
		s.mu.Lock()
		s.malformedPackets++
		s.mu.Unlock()
		return 0, fmt.Errorf("server: failed to split collated packet: %w", err)
	}

	total := 0
	for _, packet := range inner {
		total += s.broadcastRawPerClient(packet)
	}
	return total, nil
}

// broadcastRawPerClient writes one already-finalised inner packet to every
// active client's own encoder, so it gets folded into that client's
// collation instead of being sent as its own socket write.
func (s *Server) broadcastRawPerClient(packet []byte) int {
	return s.broadcast(func(e *client.Encoder) (int, error) {
		return e.WriteRawPacket(packet)
	})
}

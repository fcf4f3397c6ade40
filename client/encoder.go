// Package client implements the per-connection encoder that turns shape
// and resource operations into wire packets for exactly one connected
// client: reference counting shared resources, draining their transfer
// across frames within a byte budget, and optionally collating/compressing
// everything into one outer packet per frame.
package client

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	"github.com/scenewire/scenewire/collate"
	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/shape"
	"github.com/scenewire/scenewire/wire"
)

// DefaultMaxPayload is used when Settings.MaxPayload is left zero. It leaves
// room below wire.MaxPacketSize for the packet header and CRC.
const DefaultMaxPayload = wire.MaxPayloadSize

// Settings configures one Encoder.
type Settings struct {
	// Collate wraps outgoing packets in a CollatedPacket instead of
	// writing each one directly to the socket.
	Collate bool
	// Compress gzip-compresses collated packets when doing so shrinks
	// them. Ignored if Collate is false.
	Compress bool
	// MaxPayload bounds both individual packets and a collated packet's
	// payload. Zero means DefaultMaxPayload.
	MaxPayload uint16
}

// Encoder serialises every shape/resource operation destined for one
// client connection. Composition (building up pending work, reference
// counts, and the collator) is guarded by compMu; the underlying socket
// write is additionally guarded by sendMu. Every socket write is made while
// compMu is held, so a slow write blocks this encoder's other operations
// until it returns; other encoders have their own locks and are not
// blocked.
type Encoder struct {
	conn io.Writer

	compMu    sync.Mutex
	active    bool
	collate   bool
	collator  *collate.Collator
	pending   []resource.Resource
	resources map[uint64]*resourceEntry
	packer    *resource.Packer
	writer    *wire.Writer // long-lived per-connection scratch buffer
	info      message.ServerInfoMessage

	sendMu sync.Mutex
}

// resourceEntry tracks one shared resource's per-connection state: how many
// shapes reference it and whether its create message has gone out. A destroy
// is emitted on the last release only if the create was already sent —
// otherwise the client never knew the resource existed.
type resourceEntry struct {
	count   int
	started bool
}

var _ collate.Connection = (*Encoder)(nil)

// NewEncoder creates an Encoder that writes (collated or raw) packets to
// conn. The encoder starts active.
func NewEncoder(conn io.Writer, settings Settings) *Encoder {
	maxPayload := settings.MaxPayload
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Encoder{
		conn:      conn,
		active:    true,
		collate:   settings.Collate,
		collator:  collate.NewCollator(maxPayload, settings.Compress),
		resources: make(map[uint64]*resourceEntry),
		packer:    resource.NewPacker(),
		writer:    wire.NewWriter(maxPayload),
		info:      message.DefaultServerInfo(),
	}
}

// SetActive toggles whether this encoder does any work at all. An inactive
// encoder's write methods are neutral no-ops returning zero, matching a
// client that is still connected but has temporarily asked to stop
// receiving updates.
func (e *Encoder) SetActive(active bool) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	e.active = active
}

// Active reports whether the encoder is currently active.
func (e *Encoder) Active() bool {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	return e.active
}

// SendServerInfo writes the server info handshake message, bypassing
// collation — it must reach the client before anything else. The message is
// also retained as the negotiated settings for this connection; UpdateFrame
// uses its TimeUnit to convert frame delta times.
func (e *Encoder) SendServerInfo(info message.ServerInfoMessage) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}
	e.info = info

	e.writer.Reset(wire.RoutingServerInfo, 0)
	info.Write(e.writer)
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise server info: %w", err)
	}
	return e.sendRaw(data)
}

// Create writes a shape's creation message and, for a persistent shape
// (non-zero ID), reference-counts (enqueuing the first-time transfer of)
// every resource it enumerates. A transient shape's resources are not
// referenced.
func (e *Encoder) Create(s shape.Shape) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}

	e.writer.Reset(s.RoutingID(), message.OIdCreate)
	if err := s.WriteCreate(e.writer); err != nil {
		return 0, err
	}
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise create for shape %d: %w", s.ID(), err)
	}

	total, err := e.writePacketLocked(data)
	if err != nil {
		return total, err
	}

	if s.IsComplex() {
		n, err := e.writeComplexDataLocked(s)
		total += n
		if err != nil {
			return total, err
		}
	}

	if s.ID() != 0 {
		for _, res := range s.EnumerateResources() {
			e.referenceResourceLocked(res)
		}
	}
	return total, nil
}

// writeComplexDataLocked drains a complex shape's WriteData stream: a fresh
// Data packet per call until the shape reports done, growing the scratch
// writer (up to wire.MaxPayloadSize) if a single data chunk
// doesn't fit the writer's current capacity. Callers must hold compMu.
func (e *Encoder) writeComplexDataLocked(s shape.Shape) (int, error) {
	total := 0
	var progress resource.Progress
	for {
		e.writer.Reset(s.RoutingID(), message.OIdData)
		done, err := s.WriteData(e.writer, &progress)
		if err != nil {
			if e.writer.Failed() && e.growWriterLocked() {
				continue
			}
			return total, fmt.Errorf("client: failed to write data for shape %d: %w", s.ID(), err)
		}

		data, ferr := e.writer.Finalise()
		if ferr != nil {
			return total, fmt.Errorf("client: failed to finalise data packet for shape %d: %w", s.ID(), ferr)
		}
		n, werr := e.writePacketLocked(data)
		total += n
		if werr != nil {
			return total, werr
		}
		if done {
			return total, nil
		}
	}
}

// growWriterLocked doubles the encoder's scratch writer capacity, up to
// wire.MaxPayloadSize. It reports false once already at that
// maximum, so callers can stop retrying rather than loop forever on a data
// chunk that can never fit.
func (e *Encoder) growWriterLocked() bool {
	current := e.writer.MaxPayloadSize()
	if current >= wire.MaxPayloadSize {
		return false
	}
	next := uint32(current) * 2
	if next == 0 {
		next = DefaultMaxPayload
	}
	if next > wire.MaxPayloadSize {
		next = wire.MaxPayloadSize
	}
	e.writer = wire.NewWriter(uint16(next))
	return true
}

// Update writes a persistent shape's update message.
func (e *Encoder) Update(s shape.Shape) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}

	e.writer.Reset(s.RoutingID(), message.OIdUpdate)
	if err := s.WriteUpdate(e.writer); err != nil {
		return 0, err
	}
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise update for shape %d: %w", s.ID(), err)
	}
	return e.writePacketLocked(data)
}

// Destroy writes a persistent shape's destroy message and releases every
// resource it enumerates, emitting each resource's own destroy message as
// its reference count reaches zero. Transient shapes (ID zero) expire at the
// frame boundary and never appear in an explicit destroy stream; destroying
// one is a no-op.
func (e *Encoder) Destroy(s shape.Shape) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}
	if s.ID() == 0 {
		return 0, nil
	}

	e.writer.Reset(s.RoutingID(), message.OIdDestroy)
	if err := s.WriteDestroy(e.writer); err != nil {
		return 0, err
	}
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise destroy for shape %d: %w", s.ID(), err)
	}

	total, err := e.writePacketLocked(data)
	if err != nil {
		return total, err
	}

	for _, res := range s.EnumerateResources() {
		if _, err := e.releaseResourceLocked(res); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReferenceResource increments res's reference count, enqueuing it for
// transfer the first time it is referenced. It returns the new count.
func (e *Encoder) ReferenceResource(res resource.Resource) int {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	return e.referenceResourceLocked(res)
}

func (e *Encoder) referenceResourceLocked(res resource.Resource) int {
	key := res.UniqueKey()
	entry, ok := e.resources[key]
	if !ok {
		entry = &resourceEntry{}
		e.resources[key] = entry
		e.pending = append(e.pending, res)
	}
	entry.count++
	return entry.count
}

// ReleaseResource decrements res's reference count. Once it reaches zero,
// any in-flight transfer of this resource is cancelled and, if its create
// message already went out, its destroy message is written immediately —
// even if the transfer never completed. A resource whose create was never
// sent gets no destroy.
func (e *Encoder) ReleaseResource(res resource.Resource) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	return e.releaseResourceLocked(res)
}

func (e *Encoder) releaseResourceLocked(res resource.Resource) (int, error) {
	key := res.UniqueKey()
	entry, ok := e.resources[key]
	if !ok {
		return 0, nil
	}
	entry.count--
	if entry.count > 0 {
		return entry.count, nil
	}

	delete(e.resources, key)
	e.dequeuePendingLocked(key)
	if e.packer.Resource() != nil && e.packer.Resource().UniqueKey() == key {
		e.packer.Cancel()
	}

	if !entry.started {
		// Create never went out; the client has nothing to destroy.
		return 0, nil
	}

	if err := res.WriteDestroy(e.writer); err != nil {
		return 0, err
	}
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise resource destroy: %w", err)
	}
	if _, err := e.writePacketLocked(data); err != nil {
		return 0, err
	}
	return 0, nil
}

func (e *Encoder) dequeuePendingLocked(key uint64) {
	out := e.pending[:0]
	for _, r := range e.pending {
		if r.UniqueKey() != key {
			out = append(out, r)
		}
	}
	e.pending = out
}

// UpdateTransfers drains pending resource creates and in-flight transfers,
// writing as many packets as fit within byteBudget (a soft limit: the
// current resource's current packet is always allowed to complete once
// started). A byteBudget of 0 or less means unbounded for this call: every
// pending resource is drained to completion. It returns the number of bytes
// written.
func (e *Encoder) UpdateTransfers(byteBudget int) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}
	unbounded := byteBudget <= 0

	total := 0
	for unbounded || total < byteBudget {
		if e.packer.IsNull() {
			if len(e.pending) == 0 {
				break
			}
			next := e.pending[0]
			e.pending = e.pending[1:]
			e.packer.Transfer(next)
		}

		packetLimit := 0
		if !unbounded {
			packetLimit = byteBudget - total
		}
		cur := e.packer.Resource()
		ok, err := e.packer.NextPacket(e.writer, packetLimit)
		if err != nil {
			log.Printf("client: resource transfer failed: %v", err)
			continue
		}
		if !ok {
			break
		}
		if cur != nil {
			if entry, known := e.resources[cur.UniqueKey()]; known {
				entry.started = true
			}
		}
		data, err := e.writer.Finalise()
		if err != nil {
			return total, fmt.Errorf("client: failed to finalise resource transfer packet: %w", err)
		}
		n, err := e.writePacketLocked(data)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// UpdateFrame advances the client to a new frame: it writes a CIdFrame
// control message through the same collation path as any other message (so
// it lands after everything already queued for this frame), then flushes
// the collator so the whole frame reaches the socket before returning. dt is
// in seconds and is converted to the negotiated server info's TimeUnit.
func (e *Encoder) UpdateFrame(dt float64, persist bool) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}

	timeUnit := e.info.TimeUnit
	if timeUnit == 0 {
		timeUnit = message.DefaultServerInfo().TimeUnit
	}
	deltaTime := uint32(math.Round(dt * 1e6 / float64(timeUnit)))

	frame := message.NewFrameControl(deltaTime, persist)
	e.writer.Reset(wire.RoutingControl, message.CIdFrame)
	frame.Write(e.writer)
	data, err := e.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise frame control: %w", err)
	}

	total, err := e.writePacketLocked(data)
	if err != nil {
		return total, err
	}

	n, err := e.flushCollatorLocked()
	return total + n, err
}

// WriteRawPacket folds an already-finalised packet (for example, one
// extracted from someone else's collated packet) into this encoder's own
// collation/compression policy, exactly as if the encoder had built it
// itself.
func (e *Encoder) WriteRawPacket(data []byte) (int, error) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	if !e.active {
		return 0, nil
	}
	return e.writePacketLocked(data)
}

// writePacketLocked routes one finalised packet either straight to the
// socket or into the collator, flushing the collator first if adding would
// overflow it. Callers must hold compMu.
func (e *Encoder) writePacketLocked(data []byte) (int, error) {
	if !e.collate {
		return e.sendRaw(data)
	}

	if e.collator.Add(data) {
		return len(data), nil
	}

	if _, err := e.flushCollatorLocked(); err != nil {
		return 0, err
	}
	if e.collator.Add(data) {
		return len(data), nil
	}
	// A single packet too large even for an empty collator: bypass
	// collation for this one packet rather than dropping it.
	return e.sendRaw(data)
}

func (e *Encoder) flushCollatorLocked() (int, error) {
	if e.collator.Len() == 0 {
		return 0, nil
	}
	outer, err := e.collator.Finalise()
	e.collator.Reset()
	if err != nil {
		return 0, fmt.Errorf("client: failed to finalise collated packet: %w", err)
	}
	return e.sendRaw(outer)
}

// sendRaw writes data to the socket under the independent send lock.
func (e *Encoder) sendRaw(data []byte) (int, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	n, err := e.conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("client: write failed: %w", err)
	}
	return n, nil
}

// Package collate packs multiple finalised wire packets into a single
// CollatedPacket, optionally gzip-compressing the concatenation, so many
// small per-frame messages can be sent (and CRC-validated) as one transport
// write. A Collator can also stand in for a real per-client connection (the
// "sentinel connection" role): application code on its own thread calls
// Create/Update/Destroy directly on a Collator exactly as it would on a
// client.Encoder, then hands the finalised result to a server in one
// contiguous chunk via Server.SendCollated.
package collate

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/shape"
	"github.com/scenewire/scenewire/wire"
)

// Connection is the shape-mutation surface both client.Encoder and Collator
// implement. Application code that wants per-thread message ordering can
// write against this interface, targeting either a real per-client
// connection or a per-thread Collator interchangeably, and only decide
// which one at the point of use.
type Connection interface {
	Create(s shape.Shape) (int, error)
	Update(s shape.Shape) (int, error)
	Destroy(s shape.Shape) (int, error)
}

// CompressionLevel is fixed; the protocol has no per-call tuning knob.
const CompressionLevel = gzip.DefaultCompression

// maxDecompressedSize guards Decode against a decompression bomb; a single
// collated packet has no legitimate reason to expand past this.
const maxDecompressedSize = 16 * 1024 * 1024

// Collator accumulates finalised packet bytes and produces one outer
// CollatedPacket. It is not safe for concurrent use; callers needing
// concurrent access (the per-client encoder) hold their own lock around it.
//
// Besides plain packet aggregation (Add/Finalise), a Collator can serve as
// a sentinel connection: Create/Update/Destroy compose a shape's message
// using a scratch writer and fold the result straight into the collator's
// own buffer, exactly as client.Encoder does for a real socket.
type Collator struct {
	maxPayload uint16
	compress   bool
	buf        bytes.Buffer

	active bool
	writer *wire.Writer // scratch buffer for composing one shape message at a time
}

// NewCollator creates a Collator whose finalised packet will not exceed
// maxPayload bytes of (possibly compressed) payload. The collator starts
// active.
func NewCollator(maxPayload uint16, compress bool) *Collator {
	return &Collator{
		maxPayload: maxPayload,
		compress:   compress,
		active:     true,
		writer:     wire.NewWriter(maxPayload),
	}
}

var _ Connection = (*Collator)(nil)

// SetActive toggles whether Create/Update/Destroy do any work, matching the
// inactive-encoder contract client.Encoder.SetActive describes. While
// inactive those three are neutral no-ops returning zero; Add/Finalise are
// unaffected, since they serve plain packet aggregation regardless of the
// sentinel-connection role.
func (c *Collator) SetActive(active bool) {
	c.active = active
}

// Active reports whether the collator is currently acting as an active
// sentinel connection.
func (c *Collator) Active() bool {
	return c.active
}

// Create writes shape s's create message (and, for a complex shape, its
// data stream) directly into the collator, as if the collator were the
// connection s was created on. This is the sentinel connection role:
// application code running on its own thread accumulates a frame's shape
// messages here in isolation, then hands the whole batch to a real server
// in one contiguous chunk via Server.SendCollated, an approach
// interchangeable with using a real client.Encoder.
//
// Unlike client.Encoder, Create does not reference-count or transfer s's
// resources: a Collator used this way has no real connection to own that
// state.
func (c *Collator) Create(s shape.Shape) (int, error) {
	if !c.active {
		return 0, nil
	}
	total, err := c.writeShapeMessageLocked(s.RoutingID(), message.OIdCreate, s.WriteCreate)
	if err != nil {
		return total, err
	}
	if s.IsComplex() {
		n, err := c.writeComplexDataLocked(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Update writes shape s's update message directly into the collator.
func (c *Collator) Update(s shape.Shape) (int, error) {
	if !c.active {
		return 0, nil
	}
	return c.writeShapeMessageLocked(s.RoutingID(), message.OIdUpdate, s.WriteUpdate)
}

// Destroy writes shape s's destroy message directly into the collator.
// Destroying a transient shape (ID zero) is a no-op, matching
// client.Encoder.Destroy.
func (c *Collator) Destroy(s shape.Shape) (int, error) {
	if !c.active || s.ID() == 0 {
		return 0, nil
	}
	return c.writeShapeMessageLocked(s.RoutingID(), message.OIdDestroy, s.WriteDestroy)
}

func (c *Collator) writeShapeMessageLocked(routingID, messageID uint16, write func(*wire.Writer) error) (int, error) {
	for {
		c.writer.Reset(routingID, messageID)
		err := write(c.writer)
		if err == nil {
			break
		}
		if c.writer.Failed() && c.growWriterLocked() {
			continue
		}
		return 0, err
	}
	data, err := c.writer.Finalise()
	if err != nil {
		return 0, fmt.Errorf("collate: failed to finalise shape message: %w", err)
	}
	if !c.Add(data) {
		return 0, errors.New("collate: shape message overflowed collator capacity")
	}
	return len(data), nil
}

// writeComplexDataLocked drains a complex shape's WriteData stream into the
// collator: a fresh Data packet per call until the shape reports done,
// mirroring client.Encoder.writeComplexDataLocked.
func (c *Collator) writeComplexDataLocked(s shape.Shape) (int, error) {
	total := 0
	var progress resource.Progress
	for {
		c.writer.Reset(s.RoutingID(), message.OIdData)
		done, err := s.WriteData(c.writer, &progress)
		if err != nil {
			if c.writer.Failed() && c.growWriterLocked() {
				continue
			}
			return total, fmt.Errorf("collate: failed to write data for shape %d: %w", s.ID(), err)
		}

		data, ferr := c.writer.Finalise()
		if ferr != nil {
			return total, fmt.Errorf("collate: failed to finalise data packet for shape %d: %w", s.ID(), ferr)
		}
		if !c.Add(data) {
			return total, errors.New("collate: shape data packet overflowed collator capacity")
		}
		total += len(data)
		if done {
			return total, nil
		}
	}
}

// growWriterLocked doubles the collator's scratch writer capacity, up to
// wire.MaxPayloadSize, mirroring client.Encoder.growWriterLocked.
func (c *Collator) growWriterLocked() bool {
	current := c.writer.MaxPayloadSize()
	if current >= wire.MaxPayloadSize {
		return false
	}
	next := uint32(current) * 2
	if next == 0 {
		next = 256
	}
	if next > wire.MaxPayloadSize {
		next = wire.MaxPayloadSize
	}
	c.writer = wire.NewWriter(uint16(next))
	return true
}

// Reset clears any packets added so far.
func (c *Collator) Reset() {
	c.buf.Reset()
}

// Len is the number of raw (uncompressed) bytes added so far.
func (c *Collator) Len() int {
	return c.buf.Len()
}

// Add appends an already-finalised packet's bytes. It reports false,
// without modifying the collator, if adding packet would overflow the
// collator's payload capacity once a CollatedPacketMessage header is
// accounted for.
func (c *Collator) Add(packet []byte) bool {
	const headerOverhead = wire.HeaderSize + 8 + wire.CRCSize // CollatedPacketMessage is 8 bytes
	if c.buf.Len()+len(packet) > int(c.maxPayload)-headerOverhead {
		return false
	}
	c.buf.Write(packet)
	return true
}

// Finalise builds the outer CollatedPacket: a wire.RoutingCollated packet
// whose payload is a CollatedPacketMessage header followed by the
// accumulated bytes, compressed with gzip if the collator was constructed
// with compress=true AND compression actually shrinks the payload. When
// compression doesn't help, the flag is cleared and the raw bytes are sent
// instead — never silently fail just because compression didn't pay off.
func (c *Collator) Finalise() ([]byte, error) {
	raw := c.buf.Bytes()

	payload := raw
	flags := uint16(0)
	if c.compress && len(raw) > 0 {
		compressed, err := gzipCompress(raw)
		if err == nil && len(compressed) < len(raw) {
			payload = compressed
			flags |= message.CPFCompress
		}
	}

	w := wire.NewWriter(wire.MaxPacketSize)
	w.Reset(wire.RoutingCollated, 0)

	hdr := message.CollatedPacketMessage{
		Flags:             flags,
		UncompressedBytes: uint32(len(raw)),
	}
	hdr.Write(w)
	w.WriteRaw(payload)

	return w.Finalise()
}

// gzipCompress runs data through a gzip writer at CompressionLevel.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a previously Finalise'd CollatedPacket's payload (as
// produced by an already-CRC-validated wire.Reader), decompressing it if
// necessary, and returns the raw concatenation of inner packets.
func Decode(r *wire.Reader) ([]byte, error) {
	var hdr message.CollatedPacketMessage
	if !hdr.Read(r) {
		return nil, errors.New("collate: truncated CollatedPacket header")
	}

	body := r.ReadBytes(r.Remaining())
	if r.Failed() {
		return nil, errors.New("collate: truncated CollatedPacket body")
	}

	if !hdr.Compressed() {
		return body, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out bytes.Buffer
	out.Grow(int(hdr.UncompressedBytes))
	limited := io.LimitReader(zr, maxDecompressedSize)
	if _, err := io.Copy(&out, limited); err != nil {
		return nil, err
	}
	if out.Len() >= maxDecompressedSize {
		return nil, errors.New("collate: decompressed packet too large")
	}

	return out.Bytes(), nil
}

// SplitPackets walks a buffer of concatenated wire packets (as produced by
// Decode, or as collected directly from a socket) and returns each inner
// packet's raw bytes, using each packet's header-declared size to find
// packet boundaries.
func SplitPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	for len(data) > 0 {
		r, err := wire.NewReader(data)
		if err != nil {
			return nil, err
		}
		size := r.Header.PayloadOffset
		packetLen := wire.HeaderSize + int(size) + int(r.Header.PayloadSize)
		if r.Header.HasCRC() {
			packetLen += wire.CRCSize
		}
		if packetLen > len(data) {
			return nil, errors.New("collate: malformed inner packet length")
		}
		packets = append(packets, data[:packetLen])
		data = data[packetLen:]
	}
	return packets, nil
}

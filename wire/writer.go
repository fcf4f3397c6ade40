package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer composes one packet's payload. It is constructed with a maximum
// payload size and refuses writes that would exceed it; callers check
// Failed() (or the short count returned by each write) rather than relying
// on a panic.
type Writer struct {
	routingID     uint16
	messageID     uint16
	payloadOffset uint8
	noCRC         bool

	maxPayload uint16
	payload    []byte
	failed     bool
}

// NewWriter allocates a Writer whose payload may not exceed maxPayloadSize
// bytes.
func NewWriter(maxPayloadSize uint16) *Writer {
	return &Writer{
		maxPayload: maxPayloadSize,
		payload:    make([]byte, 0, maxPayloadSize),
	}
}

// Reset clears the payload and sets the routing/message ID for a new
// packet, reusing the underlying buffer.
func (w *Writer) Reset(routingID, messageID uint16) {
	w.routingID = routingID
	w.messageID = messageID
	w.payload = w.payload[:0]
	w.failed = false
}

// SetPayloadOffset configures the gap (in bytes, zero-filled) between the
// fixed header and the payload. Almost always zero, but propagated rather
// than hard-coded so future header extensions can shift the payload start.
func (w *Writer) SetPayloadOffset(offset uint8) {
	w.payloadOffset = offset
}

// SetNoCRC controls whether Finalise appends a CRC.
func (w *Writer) SetNoCRC(noCRC bool) {
	w.noCRC = noCRC
}

// RoutingID returns the routing ID this writer was last Reset to.
func (w *Writer) RoutingID() uint16 { return w.routingID }

// MessageID returns the message ID this writer was last Reset to.
func (w *Writer) MessageID() uint16 { return w.messageID }

// Failed reports whether any write since the last Reset was short.
func (w *Writer) Failed() bool { return w.failed }

// BytesRemaining is the number of additional payload bytes this writer will
// accept.
func (w *Writer) BytesRemaining() uint16 {
	return w.maxPayload - uint16(len(w.payload))
}

// MaxPayloadSize is the configured payload capacity.
func (w *Writer) MaxPayloadSize() uint16 { return w.maxPayload }

// PacketSize is the size, in bytes, the finalised packet will occupy:
// header + offset gap + payload + CRC (if enabled).
func (w *Writer) PacketSize() int {
	size := HeaderSize + int(w.payloadOffset) + len(w.payload)
	if !w.noCRC {
		size += CRCSize
	}
	return size
}

func (w *Writer) reserve(n int) bool {
	if n < 0 || len(w.payload)+n > int(w.maxPayload) {
		w.failed = true
		return false
	}
	return true
}

// WriteRaw appends b verbatim, performing no endian swap. Returns the
// number of bytes written, which is 0 (and the writer marked failed) if
// there was insufficient room for all of b.
func (w *Writer) WriteRaw(b []byte) int {
	if !w.reserve(len(b)) {
		return 0
	}
	w.payload = append(w.payload, b...)
	return len(b)
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) int {
	if !w.reserve(1) {
		return 0
	}
	w.payload = append(w.payload, v)
	return 1
}

// WriteUint16 writes a 16-bit value in network byte order.
func (w *Writer) WriteUint16(v uint16) int {
	if !w.reserve(2) {
		return 0
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.payload = append(w.payload, buf[:]...)
	return 2
}

// WriteUint32 writes a 32-bit value in network byte order.
func (w *Writer) WriteUint32(v uint32) int {
	if !w.reserve(4) {
		return 0
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.payload = append(w.payload, buf[:]...)
	return 4
}

// WriteUint64 writes a 64-bit value in network byte order.
func (w *Writer) WriteUint64(v uint64) int {
	if !w.reserve(8) {
		return 0
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.payload = append(w.payload, buf[:]...)
	return 8
}

// WriteFloat32 writes a 32-bit float in network byte order.
func (w *Writer) WriteFloat32(v float32) int {
	return w.WriteUint32(math.Float32bits(v))
}

// WriteFloat32Array writes a contiguous array of 32-bit floats, returning
// the number of elements written (short of len(vals) on overflow).
func (w *Writer) WriteFloat32Array(vals []float32) int {
	written := 0
	for _, v := range vals {
		if w.WriteFloat32(v) == 0 {
			break
		}
		written++
	}
	return written
}

// WriteUint32Array writes a contiguous array of uint32s.
func (w *Writer) WriteUint32Array(vals []uint32) int {
	written := 0
	for _, v := range vals {
		if w.WriteUint32(v) == 0 {
			break
		}
		written++
	}
	return written
}

// Finalise builds the complete wire-format bytes for this packet: header,
// the payload-offset gap, the payload, and (unless SetNoCRC(true) was
// called) the CRC over the header-plus-payload bytes exactly as they
// appear on the wire.
func (w *Writer) Finalise() ([]byte, error) {
	if w.failed {
		return nil, fmt.Errorf("wire: packet overflowed payload capacity")
	}
	if len(w.payload) > MaxPacketSize {
		return nil, fmt.Errorf("wire: payload too large (%d bytes)", len(w.payload))
	}

	flags := uint8(0)
	if w.noCRC {
		flags |= FlagNoCRC
	}

	total := HeaderSize + int(w.payloadOffset) + len(w.payload)
	if !w.noCRC {
		total += CRCSize
	}
	if total > MaxPacketSize {
		return nil, fmt.Errorf("wire: packet too large (%d bytes)", total)
	}

	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], Marker)
	binary.BigEndian.PutUint16(out[4:6], VersionMajor)
	binary.BigEndian.PutUint16(out[6:8], VersionMinor)
	binary.BigEndian.PutUint16(out[8:10], w.routingID)
	binary.BigEndian.PutUint16(out[10:12], w.messageID)
	binary.BigEndian.PutUint16(out[12:14], uint16(len(w.payload)))
	out[14] = w.payloadOffset
	out[15] = flags

	payloadStart := HeaderSize + int(w.payloadOffset)
	copy(out[payloadStart:payloadStart+len(w.payload)], w.payload)

	if !w.noCRC {
		crc := ComputeCRC16(out[:payloadStart+len(w.payload)])
		binary.BigEndian.PutUint16(out[payloadStart+len(w.payload):], crc)
	}

	return out, nil
}

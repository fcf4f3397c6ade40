// Package netbuf frames raw, possibly partial socket reads into whole
// wire packets. It accumulates bytes, resyncs on the packet marker when the
// stream is corrupt or a client connects mid-stream, and hands back
// complete packets one at a time.
package netbuf

import (
	"encoding/binary"
	"log"

	"github.com/scenewire/scenewire/wire"
)

// initialCapacity is the starting size of a new Buffer's backing array.
const initialCapacity = 4 * 1024

// Buffer accumulates inbound bytes and extracts complete wire packets from
// them. It is not safe for concurrent use; callers read from one
// connection on one goroutine.
type Buffer struct {
	data []byte // data[:size] holds buffered, unconsumed bytes
	size int
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, initialCapacity)}
}

// Append copies b onto the end of the buffer, growing the backing array
// geometrically (doubling) if needed.
func (b *Buffer) Append(data []byte) {
	needed := b.size + len(data)
	if needed > len(b.data) {
		newCap := len(b.data) * 2
		if newCap < needed {
			newCap = needed
		}
		grown := make([]byte, newCap)
		copy(grown, b.data[:b.size])
		b.data = grown
	}
	copy(b.data[b.size:needed], data)
	b.size = needed
}

// Len is the number of buffered, unconsumed bytes.
func (b *Buffer) Len() int { return b.size }

// resync scans for the packet marker, discarding any bytes before it. It
// reports the number of bytes discarded, logging when resync was needed at
// all — a clean stream never triggers it.
func (b *Buffer) resync() int {
	if b.size < 4 {
		return 0
	}
	for i := 0; i+4 <= b.size; i++ {
		if binary.BigEndian.Uint32(b.data[i:i+4]) == wire.Marker {
			if i > 0 {
				copy(b.data, b.data[i:b.size])
				b.size -= i
				log.Printf("netbuf: discarded %d bytes resyncing to packet marker", i)
			}
			return i
		}
	}
	// No marker anywhere in the buffer: keep only the last 3 bytes, which
	// might be the start of a marker split across reads.
	discarded := b.size
	if b.size > 3 {
		copy(b.data, b.data[b.size-3:b.size])
		b.size = 3
	} else {
		b.size = 0
	}
	discarded -= b.size
	if discarded > 0 {
		log.Printf("netbuf: discarded %d bytes with no packet marker found", discarded)
	}
	return discarded
}

// ExtractPacket attempts to pull one complete packet out of the buffered
// bytes. It reports ok=false (with no error) when more data must be read
// before a full packet is available. It only frames the packet by its
// header-declared length; CRC validation happens when the caller decodes
// the returned bytes with wire.NewReader.
func (b *Buffer) ExtractPacket() (packet []byte, ok bool, err error) {
	b.resync()

	if b.size < wire.HeaderSize {
		return nil, false, nil
	}

	payloadOffset := b.data[14]
	flags := b.data[15]
	payloadSize := binary.BigEndian.Uint16(b.data[12:14])

	total := wire.HeaderSize + int(payloadOffset) + int(payloadSize)
	if flags&wire.FlagNoCRC == 0 {
		total += wire.CRCSize
	}

	if b.size < total {
		return nil, false, nil
	}

	out := make([]byte, total)
	copy(out, b.data[:total])

	copy(b.data, b.data[total:b.size])
	b.size -= total

	return out, true, nil
}

// Package wire implements the scenewire packet format: the fixed 16-byte
// header, the 16-bit CRC-CCITT trailer, and the typed reader/writer used to
// compose and decompose packet payloads. Every multi-byte value on the wire
// is big-endian; the Reader and Writer here convert packet payloads, and
// package netbuf also reads the marker and size header fields directly to
// frame inbound bytes.
package wire

const (
	// Marker identifies the start of a packet. Always written in network
	// byte order.
	Marker = 0x03E55E30

	// VersionMajor and VersionMinor are the protocol versions advertised in
	// every packet header.
	VersionMajor = 0
	VersionMinor = 1

	// HeaderSize is the encoded size, in bytes, of a Header.
	HeaderSize = 16

	// CRCSize is the size, in bytes, of the trailing CRC when present.
	CRCSize = 2

	// MaxPacketSize is the largest a complete packet (header + payload +
	// CRC) may be; payloadSize and crc must fit a 16-bit length together
	// with the fixed header.
	MaxPacketSize = 0xFFFF

	// MaxPayloadSize is the largest payload a Writer can hold while still
	// leaving room for the fixed header and trailing CRC in a zero-offset
	// packet. A Writer constructed with a larger capacity than this risks
	// Finalise failing once the payload is actually filled, since Writer's
	// own overflow check only accounts for the payload, not the header/CRC
	// wrapped around it.
	MaxPayloadSize = MaxPacketSize - HeaderSize - CRCSize
)

// Flag bits for Header.Flags.
const (
	// FlagNoCRC marks a packet as missing its trailing CRC.
	FlagNoCRC = 1 << 0
)

// Routing IDs for the built-in message subsystems. IDs 64 and up are shape
// handlers; IDs 2048 and up are reserved for user-defined routing.
const (
	RoutingNull       uint16 = 0
	RoutingServerInfo uint16 = 1
	RoutingControl    uint16 = 2
	RoutingCollated   uint16 = 3
	RoutingMesh       uint16 = 4
	RoutingCamera     uint16 = 5
	RoutingCategory   uint16 = 6
	RoutingMaterial   uint16 = 7

	ShapeHandlersIDStart uint16 = 64
	UserIDStart          uint16 = 2048
)

// Built in shape routing IDs, in the order viewers register their handlers.
const (
	RoutingSphere uint16 = ShapeHandlersIDStart + iota
	RoutingBox
	RoutingCone
	RoutingCylinder
	RoutingCapsule
	RoutingPlane
	RoutingStar
	RoutingArrow
	RoutingMeshShape
	RoutingMeshSet
	RoutingPointCloud
	RoutingText3D
	RoutingText2D
)

// Header is the 16-byte framing header that precedes every packet payload.
type Header struct {
	Marker        uint32
	VersionMajor  uint16
	VersionMinor  uint16
	RoutingID     uint16
	MessageID     uint16
	PayloadSize   uint16
	PayloadOffset uint8
	Flags         uint8
}

// HasCRC reports whether a packet with this header carries a trailing CRC.
func (h Header) HasCRC() bool {
	return h.Flags&FlagNoCRC == 0
}

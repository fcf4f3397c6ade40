// Package message implements the catalog of payloads carried inside
// scenewire packets: server info, frame/scene control, categories, shape
// lifecycle (create/update/destroy/data) and packet collation. Every type
// here reads and writes itself through a *wire.Reader/*wire.Writer so the
// encoding stays in one place.
package message

import "github.com/scenewire/scenewire/wire"

// Message IDs carried under wire.RoutingControl.
const (
	CIdNull uint16 = iota
	// CIdFrame defines a new frame; ControlMessage.Value32 is the delta
	// time in time units (see ServerInfoMessage.TimeUnit).
	CIdFrame
	// CIdCoordinateFrame announces a change of coordinate frame.
	// ControlMessage.Value32 carries the coordinate frame code.
	CIdCoordinateFrame
	// CIdFrameCount advertises the total number of frames a replay stream
	// will contain, via ControlMessage.Value32.
	CIdFrameCount
	// CIdForceFrameFlush forces a frame update without advancing time.
	CIdForceFrameFlush
	// CIdReset clears all existing scene data.
	CIdReset
)

// ControlFlag bits for ControlMessage.ControlFlags.
const (
	// CFFramePersist keeps transient objects alive across this frame
	// instead of flushing them, when set on a CIdFrame message.
	CFFramePersist uint32 = 1 << 0
)

// CollatedPacketFlag bits for CollatedPacketMessage.Flags.
const (
	CPFCompress uint16 = 1 << 0
)

// CMIdName is the sole message ID routed under wire.RoutingCategory.
const CMIdName uint16 = 0

// Object lifecycle message IDs, routed under a shape's routing ID.
const (
	OIdNull uint16 = iota
	OIdCreate
	OIdUpdate
	OIdDestroy
	OIdData
)

// ObjectFlag bits controlling shape appearance and update semantics.
const (
	OFNone        uint16 = 0
	OFWire        uint16 = 1 << 0
	OFTransparent uint16 = 1 << 1
	OFTwoSided    uint16 = 1 << 2
	OFUpdateMode  uint16 = 1 << 3
	OFPosition    uint16 = 1 << 4
	OFRotation    uint16 = 1 << 5
	OFScale       uint16 = 1 << 6
	OFColour      uint16 = 1 << 7
	OFUser        uint16 = 1 << 12
)

// UpdateFlag bits for UpdateMessage.Flags.
const (
	UFNone        uint16 = 0
	UFInterpolate uint16 = 1 << 0
)

// ServerInfoMessage describes global server settings, sent to every client
// immediately after it connects.
type ServerInfoMessage struct {
	// TimeUnit scales the Value32 delta time of a CIdFrame control
	// message, in microseconds. Defaults to 1000 (1ms).
	TimeUnit uint64
	// DefaultFrameTime is used for replay when no explicit delta is given,
	// expressed in TimeUnit units. Defaults to 33ms worth of units.
	DefaultFrameTime uint32
	// CoordinateFrame identifies the handedness/up-axis convention this
	// server uses.
	CoordinateFrame uint8
}

// DefaultServerInfo returns a ServerInfoMessage seeded with the protocol
// defaults: a 1ms time unit and a 33ms default frame time.
func DefaultServerInfo() ServerInfoMessage {
	return ServerInfoMessage{
		TimeUnit:         1000,
		DefaultFrameTime: 33,
		CoordinateFrame:  0,
	}
}

const serverInfoReservedBytes = 35

// Write encodes the message, followed by 35 zero reserved bytes (a 48-byte
// payload in all).
func (m ServerInfoMessage) Write(w *wire.Writer) bool {
	w.WriteUint64(m.TimeUnit)
	w.WriteUint32(m.DefaultFrameTime)
	w.WriteUint8(m.CoordinateFrame)
	var reserved [serverInfoReservedBytes]byte
	return w.WriteRaw(reserved[:]) == serverInfoReservedBytes && !w.Failed()
}

// Read decodes the message, discarding the reserved padding.
func (m *ServerInfoMessage) Read(r *wire.Reader) bool {
	m.TimeUnit = r.ReadUint64()
	m.DefaultFrameTime = r.ReadUint32()
	m.CoordinateFrame = r.ReadUint8()
	r.ReadBytes(serverInfoReservedBytes)
	return !r.Failed()
}

// ControlMessage is the generic envelope for every wire.RoutingControl
// message; the control ID in the packet header's MessageID field decides
// how ControlFlags/Value32/Value64 are interpreted.
type ControlMessage struct {
	ControlFlags uint32
	Value32      uint32
	Value64      uint64
}

// Write encodes the message.
func (m ControlMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.ControlFlags)
	w.WriteUint32(m.Value32)
	w.WriteUint64(m.Value64)
	return !w.Failed()
}

// Read decodes the message.
func (m *ControlMessage) Read(r *wire.Reader) bool {
	m.ControlFlags = r.ReadUint32()
	m.Value32 = r.ReadUint32()
	m.Value64 = r.ReadUint64()
	return !r.Failed()
}

// CoordinateFrame extracts the coordinate frame code from a CIdCoordinateFrame
// control message.
func (m ControlMessage) CoordinateFrame() uint8 {
	return uint8(m.Value32)
}

// NewCoordinateFrameControl builds the control message for a CIdCoordinateFrame
// announcement.
func NewCoordinateFrameControl(frame uint8) ControlMessage {
	return ControlMessage{Value32: uint32(frame)}
}

// FrameCount extracts the expected total frame count from a CIdFrameCount
// control message.
func (m ControlMessage) FrameCount() uint32 {
	return m.Value32
}

// NewFrameCountControl builds the control message advertising the total
// number of frames a replay stream will contain.
func NewFrameCountControl(count uint32) ControlMessage {
	return ControlMessage{Value32: count}
}

// NewResetControl builds the (payload-free in practice, but still a full
// ControlMessage on the wire) CIdReset control message.
func NewResetControl() ControlMessage {
	return ControlMessage{}
}

// FrameDeltaTime extracts the frame delta time from a CIdFrame control
// message, in ServerInfoMessage.TimeUnit units.
func (m ControlMessage) FrameDeltaTime() uint32 {
	return m.Value32
}

// Persist reports whether CFFramePersist is set on a CIdFrame control
// message.
func (m ControlMessage) Persist() bool {
	return m.ControlFlags&CFFramePersist != 0
}

// NewFrameControl builds the control message for a CIdFrame message.
func NewFrameControl(deltaTime uint32, persist bool) ControlMessage {
	var flags uint32
	if persist {
		flags |= CFFramePersist
	}
	return ControlMessage{ControlFlags: flags, Value32: deltaTime}
}

// CategoryNameMessage names (or renames) a category, optionally nesting it
// under a parent category.
type CategoryNameMessage struct {
	CategoryID    uint16
	ParentID      uint16
	DefaultActive uint16
	Name          string
}

// Write encodes the message.
func (m CategoryNameMessage) Write(w *wire.Writer) bool {
	w.WriteUint16(m.CategoryID)
	w.WriteUint16(m.ParentID)
	w.WriteUint16(m.DefaultActive)
	w.WriteUint16(uint16(len(m.Name)))
	if len(m.Name) > 0 {
		w.WriteRaw([]byte(m.Name))
	}
	return !w.Failed()
}

// Read decodes the message.
func (m *CategoryNameMessage) Read(r *wire.Reader) bool {
	m.CategoryID = r.ReadUint16()
	m.ParentID = r.ReadUint16()
	m.DefaultActive = r.ReadUint16()
	nameLength := r.ReadUint16()
	if r.Failed() {
		return false
	}
	m.Name = string(r.ReadBytes(int(nameLength)))
	return !r.Failed()
}

// CollatedPacketMessage is the header of a wire.RoutingCollated packet; the
// remainder of the payload is the (optionally gzip-compressed) concatenation
// of finalised inner packets.
type CollatedPacketMessage struct {
	Flags             uint16
	UncompressedBytes uint32
}

// Write encodes the message.
func (m CollatedPacketMessage) Write(w *wire.Writer) bool {
	w.WriteUint16(m.Flags)
	w.WriteUint16(0) // reserved
	w.WriteUint32(m.UncompressedBytes)
	return !w.Failed()
}

// Read decodes the message.
func (m *CollatedPacketMessage) Read(r *wire.Reader) bool {
	m.Flags = r.ReadUint16()
	r.ReadUint16() // reserved
	m.UncompressedBytes = r.ReadUint32()
	return !r.Failed()
}

// Compressed reports whether CPFCompress is set.
func (m CollatedPacketMessage) Compressed() bool {
	return m.Flags&CPFCompress != 0
}

// ObjectAttributes carries a shape's transform and colour, shared by
// CreateMessage, UpdateMessage and MeshCreateMessage.
type ObjectAttributes struct {
	Colour   uint32
	Position [3]float32
	Rotation [4]float32
	Scale    [3]float32
}

// IdentityAttributes returns attributes for an opaque white object at the
// origin with no rotation and unit scale.
func IdentityAttributes() ObjectAttributes {
	return ObjectAttributes{
		Colour:   0xFFFFFFFF,
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// Write encodes the attributes.
func (a ObjectAttributes) Write(w *wire.Writer) bool {
	w.WriteUint32(a.Colour)
	w.WriteFloat32Array(a.Position[:])
	w.WriteFloat32Array(a.Rotation[:])
	w.WriteFloat32Array(a.Scale[:])
	return !w.Failed()
}

// Read decodes the attributes.
func (a *ObjectAttributes) Read(r *wire.Reader) bool {
	a.Colour = r.ReadUint32()
	copy(a.Position[:], r.ReadFloat32Array(3))
	copy(a.Rotation[:], r.ReadFloat32Array(4))
	copy(a.Scale[:], r.ReadFloat32Array(3))
	return !r.Failed()
}

// CreateMessage instantiates a shape. ID zero marks a transient,
// single-frame object.
type CreateMessage struct {
	ID         uint32
	Category   uint16
	Flags      uint16
	Attributes ObjectAttributes
}

// Write encodes the message.
func (m CreateMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.ID)
	w.WriteUint16(m.Category)
	w.WriteUint16(m.Flags)
	w.WriteUint16(0) // reserved
	m.Attributes.Write(w)
	return !w.Failed()
}

// Read decodes the message.
func (m *CreateMessage) Read(r *wire.Reader) bool {
	m.ID = r.ReadUint32()
	m.Category = r.ReadUint16()
	m.Flags = r.ReadUint16()
	r.ReadUint16() // reserved
	m.Attributes.Read(r)
	return !r.Failed()
}

// Transient reports whether this is a single-frame object with no
// persistent ID.
func (m CreateMessage) Transient() bool {
	return m.ID == 0
}

// UpdateMessage updates a previously created persistent shape's attributes.
type UpdateMessage struct {
	ID         uint32
	Flags      uint16
	Attributes ObjectAttributes
}

// Write encodes the message.
func (m UpdateMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.ID)
	w.WriteUint16(m.Flags)
	m.Attributes.Write(w)
	return !w.Failed()
}

// Read decodes the message.
func (m *UpdateMessage) Read(r *wire.Reader) bool {
	m.ID = r.ReadUint32()
	m.Flags = r.ReadUint16()
	m.Attributes.Read(r)
	return !r.Failed()
}

// DestroyMessage removes a previously created persistent shape.
type DestroyMessage struct {
	ID uint32
}

// Write encodes the message.
func (m DestroyMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.ID)
	return !w.Failed()
}

// Read decodes the message.
func (m *DestroyMessage) Read(r *wire.Reader) bool {
	m.ID = r.ReadUint32()
	return !r.Failed()
}

// DataMessage is the header of an additional, out-of-band data payload for
// a complex shape; the shape-specific payload follows immediately after.
type DataMessage struct {
	ID uint32
}

// Write encodes the message.
func (m DataMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.ID)
	return !w.Failed()
}

// Read decodes the message.
func (m *DataMessage) Read(r *wire.Reader) bool {
	m.ID = r.ReadUint32()
	return !r.Failed()
}

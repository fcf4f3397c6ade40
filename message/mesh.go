package message

import "github.com/scenewire/scenewire/wire"

// Message IDs carried under wire.RoutingMesh.
const (
	MmtInvalid uint16 = iota
	MmtDestroy
	MmtCreate
	MmtVertex
	MmtIndex
	MmtVertexColour
	MmtNormal
	MmtUv
	MmtSetMaterial
	// MmtRedefine invalidates a previously finalised mesh pending a new
	// MmtFinalise, while allowing its creation parameters to change.
	MmtRedefine
	MmtFinalise
)

// MeshBuildFlags bits for MeshFinaliseMessage.Flags.
const (
	MbfCalculateNormals uint32 = 1 << 0
)

// DrawType is the mesh primitive topology. Left as an open type rather than
// a closed Go enum: the wire protocol only fixes the three values below, and
// a caller may legitimately send a value this package doesn't yet name.
type DrawType uint8

// Grounded draw types; there is no fourth value in the protocol this was
// distilled from.
const (
	DtPoints DrawType = iota
	DtLines
	DtTriangles
)

// MeshCreateMessage instantiates a new, empty mesh resource with a fixed
// vertex/index capacity and topology; vertex/index/colour/normal/uv data
// streams follow as separate MeshComponentMessage payloads, finalised by a
// MeshFinaliseMessage.
type MeshCreateMessage struct {
	MeshID      uint32
	VertexCount uint32
	IndexCount  uint32
	DrawType    DrawType
	Attributes  ObjectAttributes
}

// Write encodes the message.
func (m MeshCreateMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.MeshID)
	w.WriteUint32(m.VertexCount)
	w.WriteUint32(m.IndexCount)
	w.WriteUint8(uint8(m.DrawType))
	m.Attributes.Write(w)
	return !w.Failed()
}

// Read decodes the message.
func (m *MeshCreateMessage) Read(r *wire.Reader) bool {
	m.MeshID = r.ReadUint32()
	m.VertexCount = r.ReadUint32()
	m.IndexCount = r.ReadUint32()
	m.DrawType = DrawType(r.ReadUint8())
	m.Attributes.Read(r)
	return !r.Failed()
}

// MeshRedefineMessage has the identical wire shape to MeshCreateMessage but
// is routed under MmtRedefine: it invalidates a previously finalised mesh,
// requiring re-finalisation, while allowing the create parameters (vertex
// count, topology, transform) to change.
type MeshRedefineMessage struct {
	MeshCreateMessage
}

// MeshDestroyMessage destroys an existing mesh resource.
type MeshDestroyMessage struct {
	MeshID uint32
}

// Write encodes the message.
func (m MeshDestroyMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.MeshID)
	return !w.Failed()
}

// Read decodes the message.
func (m *MeshDestroyMessage) Read(r *wire.Reader) bool {
	m.MeshID = r.ReadUint32()
	return !r.Failed()
}

// MeshComponentMessage is the shared header for vertex/index/colour/normal/uv
// component streams; Offset lets a stream be sent in multiple packets.
type MeshComponentMessage struct {
	MeshID uint32
	Offset uint32
	Count  uint16
}

// Write encodes the header (not including the element array that follows).
func (m MeshComponentMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.MeshID)
	w.WriteUint32(m.Offset)
	w.WriteUint32(0) // reserved
	w.WriteUint16(m.Count)
	return !w.Failed()
}

// Read decodes the header.
func (m *MeshComponentMessage) Read(r *wire.Reader) bool {
	m.MeshID = r.ReadUint32()
	m.Offset = r.ReadUint32()
	r.ReadUint32() // reserved
	m.Count = r.ReadUint16()
	return !r.Failed()
}

// MeshFinaliseMessage finalises a mesh resource, making it ready for use by
// any shape that references it.
type MeshFinaliseMessage struct {
	MeshID uint32
	Flags  uint32
}

// Write encodes the message.
func (m MeshFinaliseMessage) Write(w *wire.Writer) bool {
	w.WriteUint32(m.MeshID)
	w.WriteUint32(m.Flags)
	return !w.Failed()
}

// Read decodes the message.
func (m *MeshFinaliseMessage) Read(r *wire.Reader) bool {
	m.MeshID = r.ReadUint32()
	m.Flags = r.ReadUint32()
	return !r.Failed()
}

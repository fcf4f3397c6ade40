package shape

import (
	"fmt"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/wire"
)

// Box is a simple, attribute-only box shape.
type Box struct {
	Base
}

// NewBox creates a box at the identity transform; id zero makes it
// transient.
func NewBox(id uint32, category uint16) *Box {
	return &Box{Base{ObjectID: id, CategoryID: category, Attrs: message.IdentityAttributes()}}
}

// RoutingID implements Shape.
func (s *Box) RoutingID() uint16 { return wire.RoutingBox }

// WriteCreate implements Shape.
func (s *Box) WriteCreate(w *wire.Writer) error { return writeCreate(&s.Base, w) }

// WriteUpdate implements Shape.
func (s *Box) WriteUpdate(w *wire.Writer) error { return writeUpdate(&s.Base, w) }

// WriteDestroy implements Shape.
func (s *Box) WriteDestroy(w *wire.Writer) error { return writeDestroy(&s.Base, w) }

// Clone implements Shape.
func (s *Box) Clone() Shape { c := *s; return &c }

// UpdateFrom implements Shape.
func (s *Box) UpdateFrom(other Shape) {
	if o, ok := other.(*Box); ok {
		s.Attrs = o.Attrs
		s.ShapeFlags = o.ShapeFlags
	}
}

// Sphere is a simple, attribute-only sphere shape.
type Sphere struct {
	Base
}

// NewSphere creates a sphere at the identity transform.
func NewSphere(id uint32, category uint16) *Sphere {
	return &Sphere{Base{ObjectID: id, CategoryID: category, Attrs: message.IdentityAttributes()}}
}

// RoutingID implements Shape.
func (s *Sphere) RoutingID() uint16 { return wire.RoutingSphere }

// WriteCreate implements Shape.
func (s *Sphere) WriteCreate(w *wire.Writer) error { return writeCreate(&s.Base, w) }

// WriteUpdate implements Shape.
func (s *Sphere) WriteUpdate(w *wire.Writer) error { return writeUpdate(&s.Base, w) }

// WriteDestroy implements Shape.
func (s *Sphere) WriteDestroy(w *wire.Writer) error { return writeDestroy(&s.Base, w) }

// Clone implements Shape.
func (s *Sphere) Clone() Shape { c := *s; return &c }

// UpdateFrom implements Shape.
func (s *Sphere) UpdateFrom(other Shape) {
	if o, ok := other.(*Sphere); ok {
		s.Attrs = o.Attrs
		s.ShapeFlags = o.ShapeFlags
	}
}

// Arrow is a simple, attribute-only arrow shape, commonly used transiently
// to mark a single frame's debug vector.
type Arrow struct {
	Base
}

// NewArrow creates an arrow at the identity transform.
func NewArrow(id uint32, category uint16) *Arrow {
	return &Arrow{Base{ObjectID: id, CategoryID: category, Attrs: message.IdentityAttributes()}}
}

// RoutingID implements Shape.
func (s *Arrow) RoutingID() uint16 { return wire.RoutingArrow }

// WriteCreate implements Shape.
func (s *Arrow) WriteCreate(w *wire.Writer) error { return writeCreate(&s.Base, w) }

// WriteUpdate implements Shape.
func (s *Arrow) WriteUpdate(w *wire.Writer) error { return writeUpdate(&s.Base, w) }

// WriteDestroy implements Shape.
func (s *Arrow) WriteDestroy(w *wire.Writer) error { return writeDestroy(&s.Base, w) }

// Clone implements Shape.
func (s *Arrow) Clone() Shape { c := *s; return &c }

// UpdateFrom implements Shape.
func (s *Arrow) UpdateFrom(other Shape) {
	if o, ok := other.(*Arrow); ok {
		s.Attrs = o.Attrs
		s.ShapeFlags = o.ShapeFlags
	}
}

// MeshSet is a shape that renders a mesh resource; it carries no geometry
// of its own, only a reference to the resource that does. It does not
// override IsComplex: its data travels entirely through the referenced
// resource's own transfer, not through a shape data stream, so WriteData
// inherits Base's immediate-complete no-op and is never actually invoked
// by the encoder.
type MeshSet struct {
	Base
	Mesh resource.Resource
}

// NewMeshSet creates a mesh-set shape referencing mesh.
func NewMeshSet(id uint32, category uint16, mesh resource.Resource) *MeshSet {
	return &MeshSet{Base{ObjectID: id, CategoryID: category, Attrs: message.IdentityAttributes()}, mesh}
}

// RoutingID implements Shape.
func (s *MeshSet) RoutingID() uint16 { return wire.RoutingMeshSet }

// EnumerateResources implements Shape.
func (s *MeshSet) EnumerateResources() []resource.Resource {
	if s.Mesh == nil {
		return nil
	}
	return []resource.Resource{s.Mesh}
}

// WriteCreate implements Shape.
func (s *MeshSet) WriteCreate(w *wire.Writer) error { return writeCreate(&s.Base, w) }

// WriteUpdate implements Shape.
func (s *MeshSet) WriteUpdate(w *wire.Writer) error { return writeUpdate(&s.Base, w) }

// WriteDestroy implements Shape.
func (s *MeshSet) WriteDestroy(w *wire.Writer) error { return writeDestroy(&s.Base, w) }

// Clone implements Shape.
func (s *MeshSet) Clone() Shape {
	c := *s
	if s.Mesh != nil {
		c.Mesh = s.Mesh.Clone()
	}
	return &c
}

// UpdateFrom implements Shape.
func (s *MeshSet) UpdateFrom(other Shape) {
	if o, ok := other.(*MeshSet); ok {
		s.Attrs = o.Attrs
		s.ShapeFlags = o.ShapeFlags
	}
}

// mesh shape inline data-stream send types, written as the first field of
// each WriteData packet.
const (
	sendTypeVertices uint16 = 0
	sendTypeIndices  uint16 = 1
)

// maxPacketVertices/maxPacketIndices leave 256 bytes of headroom below the
// maximum packet size for header/CRC overhead.
const (
	maxPacketVertices = (0xFFFF - 256) / 12
	maxPacketIndices  = (0xFFFF - 256) / 4
)

// MeshShape is a shape that streams its own vertex/index data inline via
// WriteData, unlike MeshSet which references an out-of-band resource. The
// encoder calls WriteData repeatedly, one fresh packet per call, until
// every vertex and index has been sent.
type MeshShape struct {
	Base
	DrawType message.DrawType
	Vertices []float32 // 3 floats per vertex
	Indices  []uint32
}

// NewMeshShape creates an empty mesh shape; populate Vertices/Indices
// before handing it to a server.
func NewMeshShape(id uint32, category uint16, drawType message.DrawType) *MeshShape {
	return &MeshShape{Base: Base{ObjectID: id, CategoryID: category, Attrs: message.IdentityAttributes()}, DrawType: drawType}
}

// RoutingID implements Shape.
func (s *MeshShape) RoutingID() uint16 { return wire.RoutingMeshShape }

// WriteCreate implements Shape: the common create fields, plus the vertex
// count, index count and draw type the viewer needs before any data
// arrives.
func (s *MeshShape) WriteCreate(w *wire.Writer) error {
	if err := writeCreate(&s.Base, w); err != nil {
		return err
	}
	w.WriteUint32(uint32(len(s.Vertices) / 3))
	w.WriteUint32(uint32(len(s.Indices)))
	w.WriteUint8(uint8(s.DrawType))
	if w.Failed() {
		return fmt.Errorf("shape: failed to write mesh shape create extension for id %d", s.ObjectID)
	}
	return nil
}

// WriteUpdate implements Shape.
func (s *MeshShape) WriteUpdate(w *wire.Writer) error { return writeUpdate(&s.Base, w) }

// WriteDestroy implements Shape.
func (s *MeshShape) WriteDestroy(w *wire.Writer) error { return writeDestroy(&s.Base, w) }

// IsComplex implements Shape: true, since vertex/index data travels through
// WriteData rather than the create message.
func (s *MeshShape) IsComplex() bool { return true }

// WriteData implements Shape: one packet per call, sending a chunk of
// vertices, then a chunk of indices, tracked by progress.Progress as a flat
// "elements sent so far" cursor over the concatenation of both streams.
func (s *MeshShape) WriteData(w *wire.Writer, progress *resource.Progress) (bool, error) {
	vertexCount := uint32(len(s.Vertices) / 3)
	indexCount := uint32(len(s.Indices))
	total := vertexCount + indexCount

	data := message.DataMessage{ID: s.ObjectID}
	if !data.Write(w) {
		return false, fmt.Errorf("shape: failed to write data header for mesh shape %d", s.ObjectID)
	}

	marker := uint32(progress.Progress)
	var itemCount uint32

	switch {
	case marker < vertexCount:
		offset := marker
		itemCount = vertexCount - offset
		if itemCount > maxPacketVertices {
			itemCount = maxPacketVertices
		}
		w.WriteUint16(sendTypeVertices)
		w.WriteUint32(offset)
		w.WriteUint32(itemCount)
		start := int(offset) * 3
		w.WriteFloat32Array(s.Vertices[start : start+int(itemCount)*3])
	case marker < total:
		offset := marker - vertexCount
		itemCount = indexCount - offset
		if itemCount > maxPacketIndices {
			itemCount = maxPacketIndices
		}
		w.WriteUint16(sendTypeIndices)
		w.WriteUint32(offset)
		w.WriteUint32(itemCount)
		w.WriteUint32Array(s.Indices[offset : offset+itemCount])
	default:
		// No vertices and no indices at all: still emit a well-formed,
		// empty data message rather than nothing.
		w.WriteUint16(sendTypeVertices)
		w.WriteUint32(0)
		w.WriteUint32(0)
	}

	if w.Failed() {
		return false, fmt.Errorf("shape: overflowed packet writing mesh shape data for id %d", s.ObjectID)
	}

	progress.Progress = int64(marker) + int64(itemCount)
	done := uint32(progress.Progress) >= total
	if done {
		progress.Complete = true
	}
	return done, nil
}

// EnumerateResources implements Shape: a mesh shape carries its data inline
// and references no out-of-band resource.
func (s *MeshShape) EnumerateResources() []resource.Resource { return nil }

// Clone implements Shape.
func (s *MeshShape) Clone() Shape {
	c := *s
	c.Vertices = append([]float32(nil), s.Vertices...)
	c.Indices = append([]uint32(nil), s.Indices...)
	return &c
}

// UpdateFrom implements Shape.
func (s *MeshShape) UpdateFrom(other Shape) {
	if o, ok := other.(*MeshShape); ok {
		s.Attrs = o.Attrs
		s.ShapeFlags = o.ShapeFlags
	}
}

package resource

import (
	"fmt"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/wire"
)

// Transfer phases, walked in this order by MeshResource.Transfer. A stream
// with zero elements is skipped.
const (
	phaseVertex = iota
	phaseIndex
	phaseColour
	phaseNormal
	phaseUV
	phaseFinalise
	phaseDone
)

// MeshResource is a streamed mesh definition: a fixed vertex/index capacity
// and topology established at Create, filled in by one or more component
// streams, and made usable by Finalise. It implements Resource.
type MeshResource struct {
	MeshID     uint32
	DrawType   message.DrawType
	Attributes message.ObjectAttributes

	Vertices []float32 // 3 floats per vertex
	Indices  []uint32
	Colours  []uint32 // packed RGBA, one per vertex
	Normals  []float32
	UVs      []float32 // 2 floats per vertex

	FinaliseFlags uint32

	finalised bool
}

// NewMeshResource builds a mesh resource sized for vertexCount vertices and
// indexCount indices. Vertex colours default to opaque white until
// explicitly overwritten.
func NewMeshResource(meshID uint32, vertexCount, indexCount uint32, drawType message.DrawType) *MeshResource {
	colours := make([]uint32, vertexCount)
	for i := range colours {
		colours[i] = 0xFFFFFFFF
	}
	return &MeshResource{
		MeshID:     meshID,
		DrawType:   drawType,
		Attributes: message.IdentityAttributes(),
		Vertices:   make([]float32, 0, vertexCount*3),
		Indices:    make([]uint32, 0, indexCount),
		Colours:    colours,
	}
}

// ID implements Resource.
func (m *MeshResource) ID() uint32 { return m.MeshID }

// TypeID implements Resource.
func (m *MeshResource) TypeID() uint16 { return wire.RoutingMesh }

// UniqueKey implements Resource.
func (m *MeshResource) UniqueKey() uint64 { return key(m.TypeID(), m.MeshID) }

// Clone implements Resource with a shallow copy; the backing slices are
// shared.
func (m *MeshResource) Clone() Resource {
	clone := *m
	return &clone
}

// Finalised reports whether a finalise message has been written for this
// mesh since it was constructed or last Redefined. WriteCreate does not
// clear it.
func (m *MeshResource) Finalised() bool { return m.finalised }

// Redefine clears the finalised flag while keeping the component data
// intact. It writes no message and does not restart any transfer.
func (m *MeshResource) Redefine() {
	m.finalised = false
}

// WriteCreate implements Resource.
func (m *MeshResource) WriteCreate(w *wire.Writer) error {
	w.Reset(m.TypeID(), message.MmtCreate)
	create := message.MeshCreateMessage{
		MeshID:      m.MeshID,
		VertexCount: uint32(cap(m.Vertices) / 3),
		IndexCount:  uint32(cap(m.Indices)),
		DrawType:    m.DrawType,
		Attributes:  m.Attributes,
	}
	if !create.Write(w) {
		return fmt.Errorf("resource: failed to write mesh create message for mesh %d", m.MeshID)
	}
	return nil
}

// WriteDestroy implements Resource.
func (m *MeshResource) WriteDestroy(w *wire.Writer) error {
	w.Reset(m.TypeID(), message.MmtDestroy)
	d := message.MeshDestroyMessage{MeshID: m.MeshID}
	if !d.Write(w) {
		return fmt.Errorf("resource: failed to write mesh destroy message for mesh %d", m.MeshID)
	}
	return nil
}

type meshStream struct {
	phase     int
	messageID uint16
	elemSize  int // floats/uint32s per element
	total     int // element count
}

func (m *MeshResource) streams() [5]meshStream {
	return [5]meshStream{
		{phaseVertex, message.MmtVertex, 3, len(m.Vertices) / 3},
		{phaseIndex, message.MmtIndex, 1, len(m.Indices)},
		{phaseColour, message.MmtVertexColour, 1, len(m.Colours)},
		{phaseNormal, message.MmtNormal, 3, len(m.Normals) / 3},
		{phaseUV, message.MmtUv, 2, len(m.UVs) / 2},
	}
}

// meshComponentHeaderSize is the encoded size of a MeshComponentMessage
// header (MeshID + Offset + reserved + Count), which precedes every
// element array a transfer phase writes.
const meshComponentHeaderSize = 4 + 4 + 4 + 2

// Transfer implements Resource. Each call writes exactly one packet: either
// one component message carrying as many elements as fit in both byteLimit
// and the packet's remaining capacity, or the final MeshFinaliseMessage.
func (m *MeshResource) Transfer(w *wire.Writer, byteLimit int, progress *Progress) error {
	streams := m.streams()

	for progress.Phase < phaseFinalise {
		s := streams[progress.Phase]
		remaining := s.total - int(progress.Progress)
		if remaining <= 0 {
			progress.Phase++
			progress.Progress = 0
			continue
		}

		w.Reset(m.TypeID(), s.messageID)

		count := remaining
		if byteLimit > 0 {
			maxElems := byteLimit / (s.elemSize * 4)
			if maxElems < 1 {
				maxElems = 1
			}
			if count > maxElems {
				count = maxElems
			}
		}

		packetCap := (int(w.BytesRemaining()) - meshComponentHeaderSize) / (s.elemSize * 4)
		if packetCap < 1 {
			packetCap = 1
		}
		if count > packetCap {
			count = packetCap
		}
		if count > 0xFFFF {
			count = 0xFFFF
		}

		hdr := message.MeshComponentMessage{
			MeshID: m.MeshID,
			Offset: uint32(progress.Progress),
			Count:  uint16(count),
		}
		if !hdr.Write(w) {
			return fmt.Errorf("resource: failed to write mesh component header for mesh %d", m.MeshID)
		}

		start := int(progress.Progress) * s.elemSize
		n := count * s.elemSize
		switch s.messageID {
		case message.MmtVertex:
			w.WriteFloat32Array(m.Vertices[start : start+n])
		case message.MmtNormal:
			w.WriteFloat32Array(m.Normals[start : start+n])
		case message.MmtUv:
			w.WriteFloat32Array(m.UVs[start : start+n])
		case message.MmtIndex:
			w.WriteUint32Array(m.Indices[start : start+n])
		case message.MmtVertexColour:
			w.WriteUint32Array(m.Colours[start : start+n])
		}
		if w.Failed() {
			return fmt.Errorf("resource: overflowed packet writing mesh component for mesh %d", m.MeshID)
		}

		progress.Progress += int64(count)
		return nil
	}

	w.Reset(m.TypeID(), message.MmtFinalise)
	fin := message.MeshFinaliseMessage{MeshID: m.MeshID, Flags: m.FinaliseFlags}
	if !fin.Write(w) {
		return fmt.Errorf("resource: failed to write mesh finalise message for mesh %d", m.MeshID)
	}
	m.finalised = true
	progress.Phase = phaseDone
	progress.Complete = true
	return nil
}

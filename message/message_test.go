package message

import (
	"testing"

	"github.com/scenewire/scenewire/wire"
)

func roundTrip(t *testing.T, routingID uint16, messageID uint16, write func(*wire.Writer), read func(*wire.Reader)) {
	t.Helper()
	w := wire.NewWriter(1024)
	w.Reset(routingID, messageID)
	write(w)
	if w.Failed() {
		t.Fatalf("writer reported failure")
	}
	data, err := w.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	r, err := wire.NewReader(data)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	read(r)
	if r.Failed() {
		t.Fatalf("reader reported failure")
	}
	if !r.AtEnd() {
		t.Fatalf("%d bytes left unread", r.Remaining())
	}
}

func TestServerInfoRoundTrip(t *testing.T) {
	want := DefaultServerInfo()
	want.CoordinateFrame = 2

	var got ServerInfoMessage
	roundTrip(t, wire.RoutingServerInfo, 0,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("ServerInfoMessage mismatch: got %+v, want %+v", got, want)
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	want := NewFrameControl(33000, true)

	var got ControlMessage
	roundTrip(t, wire.RoutingControl, CIdFrame,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("ControlMessage mismatch: got %+v, want %+v", got, want)
	}
	if !got.Persist() {
		t.Errorf("expected Persist() true")
	}
	if got.FrameDeltaTime() != 33000 {
		t.Errorf("FrameDeltaTime mismatch: got %d", got.FrameDeltaTime())
	}
}

func TestCoordinateFrameControl(t *testing.T) {
	msg := NewCoordinateFrameControl(5)
	if msg.CoordinateFrame() != 5 {
		t.Errorf("CoordinateFrame mismatch: got %d, want 5", msg.CoordinateFrame())
	}
}

func TestCategoryNameRoundTrip(t *testing.T) {
	want := CategoryNameMessage{CategoryID: 3, ParentID: 1, DefaultActive: 1, Name: "debris"}

	var got CategoryNameMessage
	roundTrip(t, wire.RoutingCategory, CMIdName,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("CategoryNameMessage mismatch: got %+v, want %+v", got, want)
	}
}

func TestCollatedPacketHeaderRoundTrip(t *testing.T) {
	want := CollatedPacketMessage{Flags: CPFCompress, UncompressedBytes: 4096}

	var got CollatedPacketMessage
	roundTrip(t, wire.RoutingCollated, 0,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("CollatedPacketMessage mismatch: got %+v, want %+v", got, want)
	}
	if !got.Compressed() {
		t.Errorf("expected Compressed() true")
	}
}

func TestCreateUpdateDestroyRoundTrip(t *testing.T) {
	attrs := IdentityAttributes()
	attrs.Position = [3]float32{1, 2, 3}

	create := CreateMessage{ID: 7, Category: 2, Flags: OFTransparent, Attributes: attrs}
	var gotCreate CreateMessage
	roundTrip(t, wire.RoutingBox, OIdCreate,
		func(w *wire.Writer) { create.Write(w) },
		func(r *wire.Reader) { gotCreate.Read(r) })
	if gotCreate != create {
		t.Errorf("CreateMessage mismatch: got %+v, want %+v", gotCreate, create)
	}
	if gotCreate.Transient() {
		t.Errorf("expected non-transient create")
	}

	update := UpdateMessage{ID: 7, Flags: OFPosition, Attributes: attrs}
	var gotUpdate UpdateMessage
	roundTrip(t, wire.RoutingBox, OIdUpdate,
		func(w *wire.Writer) { update.Write(w) },
		func(r *wire.Reader) { gotUpdate.Read(r) })
	if gotUpdate != update {
		t.Errorf("UpdateMessage mismatch: got %+v, want %+v", gotUpdate, update)
	}

	destroy := DestroyMessage{ID: 7}
	var gotDestroy DestroyMessage
	roundTrip(t, wire.RoutingBox, OIdDestroy,
		func(w *wire.Writer) { destroy.Write(w) },
		func(r *wire.Reader) { gotDestroy.Read(r) })
	if gotDestroy != destroy {
		t.Errorf("DestroyMessage mismatch: got %+v, want %+v", gotDestroy, destroy)
	}
}

func TestTransientCreateHasZeroID(t *testing.T) {
	create := CreateMessage{Attributes: IdentityAttributes()}
	if !create.Transient() {
		t.Errorf("expected zero-ID create to be transient")
	}
}

func TestMeshCreateRedefineRoundTrip(t *testing.T) {
	create := MeshCreateMessage{
		MeshID:      11,
		VertexCount: 8,
		IndexCount:  36,
		DrawType:    DtTriangles,
		Attributes:  IdentityAttributes(),
	}

	var gotCreate MeshCreateMessage
	roundTrip(t, wire.RoutingMesh, MmtCreate,
		func(w *wire.Writer) { create.Write(w) },
		func(r *wire.Reader) { gotCreate.Read(r) })
	if gotCreate != create {
		t.Errorf("MeshCreateMessage mismatch: got %+v, want %+v", gotCreate, create)
	}

	redefine := MeshRedefineMessage{MeshCreateMessage: create}
	var gotRedefine MeshRedefineMessage
	roundTrip(t, wire.RoutingMesh, MmtRedefine,
		func(w *wire.Writer) { redefine.Write(w) },
		func(r *wire.Reader) { gotRedefine.Read(r) })
	if gotRedefine != redefine {
		t.Errorf("MeshRedefineMessage mismatch: got %+v, want %+v", gotRedefine, redefine)
	}
}

func TestMeshComponentRoundTrip(t *testing.T) {
	want := MeshComponentMessage{MeshID: 11, Offset: 4, Count: 16}

	var got MeshComponentMessage
	roundTrip(t, wire.RoutingMesh, MmtVertex,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("MeshComponentMessage mismatch: got %+v, want %+v", got, want)
	}
}

func TestMeshFinaliseRoundTrip(t *testing.T) {
	want := MeshFinaliseMessage{MeshID: 11, Flags: MbfCalculateNormals}

	var got MeshFinaliseMessage
	roundTrip(t, wire.RoutingMesh, MmtFinalise,
		func(w *wire.Writer) { want.Write(w) },
		func(r *wire.Reader) { got.Read(r) })

	if got != want {
		t.Errorf("MeshFinaliseMessage mismatch: got %+v, want %+v", got, want)
	}
}

package shape

import (
	"testing"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/wire"
)

func TestBoxCreateUpdateDestroyRoundTrip(t *testing.T) {
	b := NewBox(5, 1)
	b.Attrs.Position = [3]float32{1, 2, 3}

	w := wire.NewWriter(256)
	w.Reset(b.RoutingID(), message.OIdCreate)
	if err := b.WriteCreate(w); err != nil {
		t.Fatalf("WriteCreate failed: %v", err)
	}
	data, err := w.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	r, err := wire.NewReader(data)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.RoutingID() != wire.RoutingBox {
		t.Errorf("expected RoutingBox, got %d", r.RoutingID())
	}
	var create message.CreateMessage
	if !create.Read(r) {
		t.Fatalf("failed to read create message")
	}
	if create.ID != 5 || create.Attributes.Position != b.Attrs.Position {
		t.Errorf("create message mismatch: %+v", create)
	}
}

func TestBoxIsNotComplex(t *testing.T) {
	b := NewBox(0, 0)
	if b.IsComplex() {
		t.Errorf("expected Box to be simple")
	}
	var progress resource.Progress
	w := wire.NewWriter(16)
	done, err := b.WriteData(w, &progress)
	if err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}
	if !done || !progress.Complete {
		t.Errorf("expected simple shape's WriteData to complete immediately")
	}
}

func TestBoxUpdateFromOnlyAppliesMatchingType(t *testing.T) {
	a := NewBox(1, 0)
	b := NewBox(1, 0)
	b.Attrs.Position = [3]float32{9, 9, 9}

	a.UpdateFrom(b)
	if a.Attrs.Position != b.Attrs.Position {
		t.Errorf("expected UpdateFrom to copy attributes from matching type")
	}

	sphere := NewSphere(1, 0)
	before := a.Attrs
	a.UpdateFrom(sphere)
	if a.Attrs != before {
		t.Errorf("UpdateFrom should ignore a mismatched concrete type")
	}
}

func TestMeshSetIsNotComplexAndEnumeratesResource(t *testing.T) {
	mesh := resource.NewMeshResource(1, 3, 0, message.DtPoints)
	ms := NewMeshSet(10, 0, mesh)

	if ms.IsComplex() {
		t.Errorf("expected MeshSet to not be complex: its data travels through the referenced resource, not WriteData")
	}
	resources := ms.EnumerateResources()
	if len(resources) != 1 || resources[0] != mesh {
		t.Errorf("expected EnumerateResources to return the referenced mesh")
	}
}

func TestMeshShapeIsComplexAndStreamsVertexAndIndexData(t *testing.T) {
	ms := NewMeshShape(11, 0, message.DtTriangles)
	ms.Vertices = []float32{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
		1, 1, 0,
	}
	ms.Indices = []uint32{0, 1, 2, 1, 3, 2}

	if !ms.IsComplex() {
		t.Errorf("expected MeshShape to be complex")
	}
	if ms.EnumerateResources() != nil {
		t.Errorf("expected MeshShape to enumerate no out-of-band resources")
	}

	w := wire.NewWriter(512)
	if err := ms.WriteCreate(w); err != nil {
		t.Fatalf("WriteCreate failed: %v", err)
	}
	if _, err := w.Finalise(); err != nil {
		t.Fatalf("Finalise of create packet failed: %v", err)
	}

	var progress resource.Progress
	var packets int
	for {
		w := wire.NewWriter(512)
		done, err := ms.WriteData(w, &progress)
		if err != nil {
			t.Fatalf("WriteData failed: %v", err)
		}
		if _, err := w.Finalise(); err != nil {
			t.Fatalf("Finalise of data packet failed: %v", err)
		}
		packets++
		if packets > len(ms.Vertices)+len(ms.Indices)+2 {
			t.Fatalf("WriteData did not terminate")
		}
		if done {
			break
		}
	}

	if !progress.Complete {
		t.Errorf("expected progress to be marked complete once WriteData reports done")
	}
	if packets == 0 {
		t.Errorf("expected at least one data packet to be written")
	}
}

func TestMeshShapeWriteDataEmptyMeshStillEmitsOnePacket(t *testing.T) {
	ms := NewMeshShape(12, 0, message.DtPoints)

	var progress resource.Progress
	w := wire.NewWriter(512)
	done, err := ms.WriteData(w, &progress)
	if err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}
	if !done {
		t.Errorf("expected an empty mesh shape to complete in a single WriteData call")
	}
	if _, err := w.Finalise(); err != nil {
		t.Fatalf("Finalise of data packet failed: %v", err)
	}
}

func TestMeshSetCloneClonesResource(t *testing.T) {
	mesh := resource.NewMeshResource(1, 3, 0, message.DtPoints)
	ms := NewMeshSet(10, 0, mesh)

	clone := ms.Clone().(*MeshSet)
	if clone.Mesh == mesh {
		t.Errorf("expected Clone to clone the referenced resource, not alias it")
	}
	if clone.Mesh.UniqueKey() != mesh.UniqueKey() {
		t.Errorf("expected cloned resource to share the same identity")
	}
}

func TestTransientShapeHasZeroID(t *testing.T) {
	a := NewArrow(0, 0)
	if a.ID() != 0 {
		t.Errorf("expected transient arrow to have ID 0, got %d", a.ID())
	}
}

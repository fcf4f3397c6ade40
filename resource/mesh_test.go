package resource

import (
	"testing"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/wire"
)

func TestMeshResourceDefaultsToWhiteColours(t *testing.T) {
	m := NewMeshResource(1, 4, 0, message.DtPoints)
	for i, c := range m.Colours {
		if c != 0xFFFFFFFF {
			t.Errorf("colour %d: got 0x%08x, want white", i, c)
		}
	}
}

func TestMeshResourceFullTransferSequence(t *testing.T) {
	m := NewMeshResource(1, 3, 3, message.DtTriangles)
	m.Vertices = append(m.Vertices, 0, 0, 0, 1, 0, 0, 0, 1, 0)
	m.Indices = append(m.Indices, 0, 1, 2)

	p := NewPacker()
	p.Transfer(m)

	var sawVertex, sawIndex, sawColour, sawFinalise bool
	for i := 0; i < 20; i++ {
		if p.IsNull() {
			break
		}
		w := wire.NewWriter(wire.MaxPacketSize)
		w.Reset(wire.RoutingMesh, 0)
		ok, err := p.NextPacket(w, 4096)
		if err != nil {
			t.Fatalf("NextPacket failed: %v", err)
		}
		if !ok {
			break
		}
		data, err := w.Finalise()
		if err != nil {
			t.Fatalf("Finalise failed: %v", err)
		}
		r, err := wire.NewReader(data)
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		if r.RoutingID() != wire.RoutingMesh {
			t.Errorf("packet %d: routing ID = %d, want RoutingMesh", i, r.RoutingID())
		}
		switch i {
		case 0:
			if r.MessageID() != message.MmtCreate {
				t.Errorf("packet 0: message ID = %d, want MmtCreate", r.MessageID())
			}
			var create message.MeshCreateMessage
			if !create.Read(r) {
				t.Fatalf("failed to read create message")
			}
			if create.MeshID != 1 || create.VertexCount != 3 || create.IndexCount != 3 {
				t.Errorf("unexpected create message: %+v", create)
			}
		default:
			switch {
			case !sawVertex:
				if r.MessageID() != message.MmtVertex {
					t.Errorf("packet %d: message ID = %d, want MmtVertex", i, r.MessageID())
				}
				var hdr message.MeshComponentMessage
				hdr.Read(r)
				sawVertex = true
			case !sawIndex:
				if r.MessageID() != message.MmtIndex {
					t.Errorf("packet %d: message ID = %d, want MmtIndex", i, r.MessageID())
				}
				var hdr message.MeshComponentMessage
				hdr.Read(r)
				sawIndex = true
			case !sawColour:
				if r.MessageID() != message.MmtVertexColour {
					t.Errorf("packet %d: message ID = %d, want MmtVertexColour", i, r.MessageID())
				}
				var hdr message.MeshComponentMessage
				hdr.Read(r)
				sawColour = true
			case !sawFinalise:
				if r.MessageID() != message.MmtFinalise {
					t.Errorf("packet %d: message ID = %d, want MmtFinalise", i, r.MessageID())
				}
				var fin message.MeshFinaliseMessage
				if !fin.Read(r) {
					t.Fatalf("failed to read finalise message")
				}
				sawFinalise = true
			}
		}
	}

	if !sawVertex || !sawIndex || !sawColour || !sawFinalise {
		t.Fatalf("missing phases: vertex=%v index=%v colour=%v finalise=%v", sawVertex, sawIndex, sawColour, sawFinalise)
	}
	if !m.Finalised() {
		t.Errorf("expected mesh to be finalised")
	}
	if !p.IsNull() {
		t.Errorf("expected packer to be idle after full transfer")
	}
}

func TestMeshResourceByteBudgetSplitsTransfer(t *testing.T) {
	m := NewMeshResource(2, 100, 0, message.DtPoints)
	for i := 0; i < 100; i++ {
		m.Vertices = append(m.Vertices, float32(i), float32(i), float32(i))
	}

	p := NewPacker()
	p.Transfer(m)

	// Consume the create packet.
	w := wire.NewWriter(wire.MaxPacketSize)
	w.Reset(wire.RoutingMesh, 0)
	if _, err := p.NextPacket(w, 16); err != nil {
		t.Fatalf("NextPacket (create) failed: %v", err)
	}

	vertexPackets := 0
	for {
		w := wire.NewWriter(wire.MaxPacketSize)
		w.Reset(wire.RoutingMesh, 0)
		ok, err := p.NextPacket(w, 16) // tiny byte limit forces many small packets
		if err != nil {
			t.Fatalf("NextPacket failed: %v", err)
		}
		if !ok {
			break
		}
		data, err := w.Finalise()
		if err != nil {
			t.Fatalf("Finalise failed: %v", err)
		}
		r, err := wire.NewReader(data)
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		var hdr message.MeshComponentMessage
		if hdr.Read(r) && hdr.Count > 0 {
			vertexPackets++
			if vertexPackets > 200 {
				t.Fatalf("transfer did not converge")
			}
		}
		if p.IsNull() {
			break
		}
	}

	if vertexPackets < 2 {
		t.Errorf("expected the byte limit to split the vertex stream across multiple packets, got %d", vertexPackets)
	}
}

func TestMeshRedefineRequiresRefinalise(t *testing.T) {
	m := NewMeshResource(3, 1, 0, message.DtPoints)
	m.Vertices = append(m.Vertices, 0, 0, 0)

	p := NewPacker()
	p.Transfer(m)
	for !p.IsNull() {
		w := wire.NewWriter(wire.MaxPacketSize)
		w.Reset(wire.RoutingMesh, 0)
		if _, err := p.NextPacket(w, 4096); err != nil {
			t.Fatalf("NextPacket failed: %v", err)
		}
	}
	if !m.Finalised() {
		t.Fatalf("expected mesh finalised before redefine")
	}

	m.Redefine()
	if m.Finalised() {
		t.Errorf("expected Redefine to clear the finalised flag")
	}
}

func TestPackerCancelMidTransfer(t *testing.T) {
	m := NewMeshResource(4, 10, 0, message.DtPoints)
	for i := 0; i < 10; i++ {
		m.Vertices = append(m.Vertices, 0, 0, 0)
	}

	p := NewPacker()
	p.Transfer(m)

	w := wire.NewWriter(wire.MaxPacketSize)
	w.Reset(wire.RoutingMesh, 0)
	p.NextPacket(w, 4096) // create

	p.Cancel()
	if !p.IsNull() {
		t.Errorf("expected packer to be idle after Cancel")
	}
	if m.Finalised() {
		t.Errorf("cancelled transfer must not leave the mesh finalised")
	}
}

package collate

import (
	"bytes"
	"testing"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/shape"
	"github.com/scenewire/scenewire/wire"
)

func buildPacket(t *testing.T, routingID, messageID uint16, n int) []byte {
	t.Helper()
	w := wire.NewWriter(wire.MaxPacketSize)
	w.Reset(routingID, messageID)
	for i := 0; i < n; i++ {
		w.WriteUint8(byte(i))
	}
	data, err := w.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	return data
}

func TestCollateDecodeRoundTripUncompressed(t *testing.T) {
	c := NewCollator(4096, false)

	p1 := buildPacket(t, wire.RoutingBox, 1, 8)
	p2 := buildPacket(t, wire.RoutingSphere, 1, 4)

	if !c.Add(p1) {
		t.Fatalf("Add p1 failed")
	}
	if !c.Add(p2) {
		t.Fatalf("Add p2 failed")
	}

	outer, err := c.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}

	r, err := wire.NewReader(outer)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.RoutingID() != wire.RoutingCollated {
		t.Fatalf("expected RoutingCollated, got %d", r.RoutingID())
	}

	body, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(body, append(append([]byte{}, p1...), p2...)) {
		t.Errorf("decoded body does not match concatenated inner packets")
	}

	inner, err := SplitPackets(body)
	if err != nil {
		t.Fatalf("SplitPackets failed: %v", err)
	}
	if len(inner) != 2 {
		t.Fatalf("expected 2 inner packets, got %d", len(inner))
	}
	if !bytes.Equal(inner[0], p1) || !bytes.Equal(inner[1], p2) {
		t.Errorf("split inner packets do not match originals")
	}
}

func TestCollateCompressionRoundTrip(t *testing.T) {
	c := NewCollator(wire.MaxPacketSize, true)

	// Highly repetitive payload so gzip reliably shrinks it.
	p := buildPacket(t, wire.RoutingMeshSet, 1, 2000)
	if !c.Add(p) {
		t.Fatalf("Add failed")
	}

	outer, err := c.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}

	r, err := wire.NewReader(outer)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	body, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(body, p) {
		t.Errorf("decoded body does not match original packet")
	}
}

func TestCollateAddRejectsOverflow(t *testing.T) {
	c := NewCollator(32, false)
	big := buildPacket(t, wire.RoutingBox, 1, 64)
	if c.Add(big) {
		t.Errorf("expected Add to reject an oversized packet")
	}
	if c.Len() != 0 {
		t.Errorf("expected collator to remain empty after rejected Add")
	}
}

func TestCollateResetClears(t *testing.T) {
	c := NewCollator(4096, false)
	p := buildPacket(t, wire.RoutingBox, 1, 4)
	c.Add(p)
	if c.Len() == 0 {
		t.Fatalf("expected non-empty collator after Add")
	}
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("expected empty collator after Reset")
	}
}

// buildShapeMessage finalises one shape message directly, exactly as if it
// had been sent on its own connection with collation disabled. It is the
// "direct" side of the collation-equivalence comparison below.
func buildShapeMessage(t *testing.T, routingID, messageID uint16, write func(*wire.Writer) error) []byte {
	t.Helper()
	w := wire.NewWriter(wire.MaxPacketSize)
	w.Reset(routingID, messageID)
	if err := write(w); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := w.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	return data
}

// TestCollatorSentinelConnectionMatchesDirectPackets exercises the
// "sentinel connection" role: building the same sequence of shapes through
// Collator.Create/Update/Destroy must yield byte-for-byte the same inner
// packets, in the same order, as building each one directly and sending it
// uncollated.
func TestCollatorSentinelConnectionMatchesDirectPackets(t *testing.T) {
	box := shape.NewBox(1, 0)
	sphere := shape.NewSphere(2, 0)

	c := NewCollator(wire.MaxPacketSize, false)
	if !c.Active() {
		t.Fatalf("expected a new collator to start active")
	}
	if _, err := c.Create(box); err != nil {
		t.Fatalf("Create(box) failed: %v", err)
	}
	if _, err := c.Create(sphere); err != nil {
		t.Fatalf("Create(sphere) failed: %v", err)
	}
	if _, err := c.Update(box); err != nil {
		t.Fatalf("Update(box) failed: %v", err)
	}
	if _, err := c.Destroy(sphere); err != nil {
		t.Fatalf("Destroy(sphere) failed: %v", err)
	}

	outer, err := c.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	r, err := wire.NewReader(outer)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	body, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, err := SplitPackets(body)
	if err != nil {
		t.Fatalf("SplitPackets failed: %v", err)
	}

	want := [][]byte{
		buildShapeMessage(t, box.RoutingID(), message.OIdCreate, box.WriteCreate),
		buildShapeMessage(t, sphere.RoutingID(), message.OIdCreate, sphere.WriteCreate),
		buildShapeMessage(t, box.RoutingID(), message.OIdUpdate, box.WriteUpdate),
		buildShapeMessage(t, sphere.RoutingID(), message.OIdDestroy, sphere.WriteDestroy),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d inner packets, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("packet %d: collated via sentinel connection = %x, want %x", i, got[i], want[i])
		}
	}
}

// TestCollatorSentinelConnectionInactiveIsNoOp mirrors client.Encoder's
// inactive contract: once SetActive(false), Create/Update/Destroy do
// nothing and report zero.
func TestCollatorSentinelConnectionInactiveIsNoOp(t *testing.T) {
	c := NewCollator(wire.MaxPacketSize, false)
	c.SetActive(false)
	if c.Active() {
		t.Fatalf("expected SetActive(false) to take effect")
	}

	box := shape.NewBox(1, 0)
	n, err := c.Create(box)
	if err != nil {
		t.Fatalf("Create returned an error while inactive: %v", err)
	}
	if n != 0 {
		t.Errorf("expected Create to report 0 bytes while inactive, got %d", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected an inactive collator to remain empty, got %d bytes", c.Len())
	}
}

// TestCollatorCreateComplexShapeWritesDataStream exercises the complex-shape
// path through the sentinel connection: a mesh shape's Create must be
// followed by one or more Data packets carrying its vertex/index streams.
func TestCollatorCreateComplexShapeWritesDataStream(t *testing.T) {
	mesh := shape.NewMeshShape(3, 0, message.DtTriangles)
	mesh.Vertices = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	mesh.Indices = []uint32{0, 1, 2}

	c := NewCollator(wire.MaxPacketSize, false)
	n, err := c.Create(mesh)
	if err != nil {
		t.Fatalf("Create(mesh) failed: %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected Create to report a positive byte count, got %d", n)
	}

	outer, err := c.Finalise()
	if err != nil {
		t.Fatalf("Finalise failed: %v", err)
	}
	r, err := wire.NewReader(outer)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	body, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	inner, err := SplitPackets(body)
	if err != nil {
		t.Fatalf("SplitPackets failed: %v", err)
	}
	if len(inner) < 2 {
		t.Fatalf("expected a create packet plus at least one data packet, got %d", len(inner))
	}

	first, err := wire.NewReader(inner[0])
	if err != nil {
		t.Fatalf("NewReader(first) failed: %v", err)
	}
	if first.MessageID() != message.OIdCreate {
		t.Errorf("expected first inner packet to be OIdCreate, got %d", first.MessageID())
	}
	last, err := wire.NewReader(inner[len(inner)-1])
	if err != nil {
		t.Fatalf("NewReader(last) failed: %v", err)
	}
	if last.MessageID() != message.OIdData {
		t.Errorf("expected last inner packet to be OIdData, got %d", last.MessageID())
	}
}

// Package shape defines the abstract contract every renderable object on
// the wire implements, plus a handful of attribute-only concrete shapes.
// None of the concrete shapes compute geometry — wire.RoutingID, flags,
// attributes, and (for MeshSet) a resource reference are all the protocol
// itself cares about; a real client derives the geometry from those.
package shape

import (
	"fmt"

	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/resource"
	"github.com/scenewire/scenewire/wire"
)

// Shape is the polymorphic contract every shape type implements, keyed by
// its RoutingID. A transient shape (ID zero) lives for one frame only; a
// persistent shape (non-zero ID) is created once and updated/destroyed
// explicitly.
type Shape interface {
	// RoutingID identifies which shape handler this shape routes through.
	RoutingID() uint16
	// ID is zero for a transient, single-frame shape.
	ID() uint32
	Category() uint16
	Flags() uint16
	Attributes() message.ObjectAttributes

	// WriteCreate populates w (already Reset to RoutingID()/OIdCreate) with
	// this shape's creation message.
	WriteCreate(w *wire.Writer) error
	// WriteUpdate populates w (already Reset to RoutingID()/OIdUpdate).
	// Only meaningful for persistent shapes.
	WriteUpdate(w *wire.Writer) error
	// WriteDestroy populates w (already Reset to RoutingID()/OIdDestroy).
	WriteDestroy(w *wire.Writer) error

	// IsComplex reports whether this shape has additional data beyond its
	// create message, to be sent via WriteData across one or more calls.
	IsComplex() bool
	// WriteData populates w (already Reset to RoutingID()/OIdData) with the
	// next chunk of shape-specific data, advancing progress. It reports
	// done once there is nothing further to send. Shapes for which
	// IsComplex() is false are never called.
	WriteData(w *wire.Writer, progress *resource.Progress) (done bool, err error)

	// EnumerateResources returns every resource this shape references, so a
	// client encoder can reference-count and, if needed, transfer them.
	EnumerateResources() []resource.Resource

	// Clone returns an independent copy suitable for per-client
	// bookkeeping.
	Clone() Shape
	// UpdateFrom copies the mutable fields of other (expected to be the
	// same concrete type and ID) onto this shape, as applied by an Update
	// message.
	UpdateFrom(other Shape)
}

// Base holds the fields common to every concrete shape in this package and
// implements everything in Shape except RoutingID, WriteCreate/WriteUpdate/
// WriteDestroy, Clone and UpdateFrom, which are necessarily type-specific.
type Base struct {
	ObjectID   uint32
	CategoryID uint16
	ShapeFlags uint16
	Attrs      message.ObjectAttributes
}

// ID implements Shape.
func (b *Base) ID() uint32 { return b.ObjectID }

// Category implements Shape.
func (b *Base) Category() uint16 { return b.CategoryID }

// Flags implements Shape.
func (b *Base) Flags() uint16 { return b.ShapeFlags }

// Attributes implements Shape.
func (b *Base) Attributes() message.ObjectAttributes { return b.Attrs }

// IsComplex is false by default; the attribute-only shapes in this package
// have no data beyond their create message.
func (b *Base) IsComplex() bool { return false }

// WriteData is a no-op default for simple shapes: there is nothing to
// write, and the cursor is immediately complete.
func (b *Base) WriteData(w *wire.Writer, progress *resource.Progress) (bool, error) {
	progress.Complete = true
	return true, nil
}

// EnumerateResources is empty by default; only resource-backed shapes
// override it.
func (b *Base) EnumerateResources() []resource.Resource { return nil }

func writeCreate(b *Base, w *wire.Writer) error {
	create := message.CreateMessage{
		ID:         b.ObjectID,
		Category:   b.CategoryID,
		Flags:      b.ShapeFlags,
		Attributes: b.Attrs,
	}
	if !create.Write(w) {
		return fmt.Errorf("shape: failed to write create message for id %d", b.ObjectID)
	}
	return nil
}

func writeUpdate(b *Base, w *wire.Writer) error {
	update := message.UpdateMessage{
		ID:         b.ObjectID,
		Flags:      b.ShapeFlags,
		Attributes: b.Attrs,
	}
	if !update.Write(w) {
		return fmt.Errorf("shape: failed to write update message for id %d", b.ObjectID)
	}
	return nil
}

func writeDestroy(b *Base, w *wire.Writer) error {
	destroy := message.DestroyMessage{ID: b.ObjectID}
	if !destroy.Write(w) {
		return fmt.Errorf("shape: failed to write destroy message for id %d", b.ObjectID)
	}
	return nil
}

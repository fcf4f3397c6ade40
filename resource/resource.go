// Package resource implements the reference-counted resource contract used
// by shapes that need to share bulky, multi-packet data — meshes chief
// among them. A resource's wire transfer is driven incrementally through a
// Progress cursor so a byte budget per frame can be respected without
// blocking on a single huge write.
package resource

import "github.com/scenewire/scenewire/wire"

// Progress tracks how much of a resource's transfer has been sent. Phase
// and Progress are opaque outside the resource implementation that owns
// them; a Packer only resets and inspects Complete/Failed.
type Progress struct {
	Progress int64
	Phase    int
	Complete bool
	Failed   bool
}

// Reset returns progress to its initial, untransferred state.
func (p *Progress) Reset() {
	p.Progress = 0
	p.Phase = 0
	p.Complete = false
	p.Failed = false
}

// Resource is anything a Shape can reference that needs its own create,
// incremental transfer and destroy lifecycle independent of the shape's own
// create/update/destroy messages. Resources are uniquely identified by the
// combination of TypeID (a routing ID) and ID (unique within that type).
//
// A Resource is transferred to a client once, the first time any shape
// references it, and destroyed once the last referencing shape is
// destroyed; reference counting itself lives in the client package, not
// here.
type Resource interface {
	// ID is unique among resources sharing this TypeID.
	ID() uint32
	// TypeID is the routing ID this resource's messages travel under.
	TypeID() uint16
	// UniqueKey combines TypeID and ID into a single lookup key.
	UniqueKey() uint64
	// Clone returns a shallow copy suitable for independent per-client
	// transfer bookkeeping; implementations may share any backing data.
	Clone() Resource

	// WriteCreate resets w to this resource's own (routing, create-message)
	// ID and populates it with the resource's creation message. Only the
	// resource itself knows which message ID its create variant uses, so it
	// owns the Reset rather than requiring the caller to guess it.
	WriteCreate(w *wire.Writer) error
	// WriteDestroy resets w to this resource's (routing, destroy-message) ID
	// and populates it with the resource's destruction message.
	WriteDestroy(w *wire.Writer) error
	// Transfer resets w to the (routing, message) ID of whichever chunk it
	// is about to write (a component stream or the finalise message) and
	// populates it, writing no more than byteLimit bytes of payload where
	// practical, and advances progress. Transfer sets progress.Complete once
	// the resource is fully sent, or progress.Failed if it cannot continue.
	Transfer(w *wire.Writer, byteLimit int, progress *Progress) error
}

// key combines a type ID and resource ID into a Resource.UniqueKey value.
func key(typeID uint16, id uint32) uint64 {
	return uint64(typeID)<<32 | uint64(id)
}

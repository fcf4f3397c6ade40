package resource

import "github.com/scenewire/scenewire/wire"

// Packer drives a single Resource's create/transfer sequence one
// packet at a time, amortising a potentially large resource across many
// NextPacket calls. It is reused across resources: call Transfer to begin
// sending a new one.
type Packer struct {
	resource        Resource
	progress        Progress
	lastCompletedID uint64
	started         bool
}

// NewPacker creates an idle Packer.
func NewPacker() *Packer {
	return &Packer{}
}

// Transfer begins sending r, cancelling whatever transfer (if any) was in
// progress.
func (p *Packer) Transfer(r Resource) {
	p.Cancel()
	p.resource = r
}

// Cancel abandons the current transfer, if any, without marking it
// complete. Used when a resource is released (its last referencing shape
// destroyed) mid-transfer.
func (p *Packer) Cancel() {
	p.progress.Reset()
	p.resource = nil
	p.started = false
}

// IsNull reports whether the packer has no resource in flight.
func (p *Packer) IsNull() bool {
	return p.resource == nil
}

// Resource returns the resource currently being transferred, or nil.
func (p *Packer) Resource() Resource {
	return p.resource
}

// LastCompletedID is the UniqueKey of the most recently completed (or
// failed) transfer.
func (p *Packer) LastCompletedID() uint64 {
	return p.lastCompletedID
}

// NextPacket writes the next packet for the resource in flight: the create
// message on the first call, then successive Transfer chunks bounded by
// byteLimit, until the resource reports Complete or Failed. It returns false
// once there is nothing left to send (no resource in flight).
func (p *Packer) NextPacket(w *wire.Writer, byteLimit int) (bool, error) {
	if p.resource == nil {
		return false, nil
	}

	if !p.started {
		if err := p.resource.WriteCreate(w); err != nil {
			p.lastCompletedID = p.resource.UniqueKey()
			p.resource = nil
			p.progress.Reset()
			return false, err
		}
		p.started = true
		return true, nil
	}

	if err := p.resource.Transfer(w, byteLimit, &p.progress); err != nil {
		p.progress.Failed = true
		p.lastCompletedID = p.resource.UniqueKey()
		p.resource = nil
		p.progress.Reset()
		return false, err
	}

	if p.progress.Complete || p.progress.Failed {
		p.lastCompletedID = p.resource.UniqueKey()
		p.resource = nil
		p.progress.Reset()
	}

	return true, nil
}

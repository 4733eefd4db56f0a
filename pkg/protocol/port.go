// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/ring"
)

// GatePolicy selects which commands honor the busy gate
type GatePolicy int

const (
	// GateUniform makes every send wait for the previous message to drain
	GateUniform GatePolicy = iota
	// GateLegacy only gates stats and gps, letting state and sound frames
	// interleave with a message still in flight
	GateLegacy
	// GateNone disables the gate; only capacity is checked
	GateNone
)

// String returns the policy name
func (g GatePolicy) String() string {
	switch g {
	case GateUniform:
		return "uniform"
	case GateLegacy:
		return "legacy"
	case GateNone:
		return "none"
	default:
		return "unknown"
	}
}

// PortStats counts admission outcomes
type PortStats struct {
	Sent          uint64
	RefusedSize   uint64 // not enough free space in the outbound queue
	RefusedBusy   uint64 // previous message still draining
	RefusedSilent uint64 // command has no wire size for this controller
}

// Port is one side of a transport: an outbound and inbound byte queue, a
// parser for the inbound side and the registry that sizes and routes
// commands. All methods except the queue operations must be called from
// the owning control loop.
type Port struct {
	Out *ring.ByteQueue
	In  *ring.ByteQueue

	name     string
	iface    Interface
	registry *Registry
	parser   *Parser
	policy   GatePolicy
	busy     bool
	stats    PortStats
}

// NewPort creates a port whose inbound frames are dispatched through reg
// with iface as their origin
func NewPort(name string, iface Interface, reg *Registry) *Port {
	return &Port{
		Out:      ring.NewByteQueue(),
		In:       ring.NewByteQueue(),
		name:     name,
		iface:    iface,
		registry: reg,
		parser:   NewParser(reg.Registered),
	}
}

// SetGatePolicy changes which commands honor the busy gate
func (p *Port) SetGatePolicy(g GatePolicy) {
	p.policy = g
}

// GatePolicy returns the active policy
func (p *Port) GatePolicy() GatePolicy {
	return p.policy
}

// Name returns the port name used in log lines
func (p *Port) Name() string {
	return p.name
}

// Registry returns the command registry
func (p *Port) Registry() *Registry {
	return p.registry
}

// Parser returns the inbound parser
func (p *Port) Parser() *Parser {
	return p.parser
}

// Busy reports whether a message is still draining from the outbound queue
func (p *Port) Busy() bool {
	return p.busy
}

// Stats returns the admission counters
func (p *Port) Stats() PortStats {
	return p.stats
}

func (p *Port) gated(id CommandID) bool {
	switch p.policy {
	case GateLegacy:
		return id == CmdStats || id == CmdGPS
	case GateNone:
		return false
	default:
		return true
	}
}

// CanSend reports whether a frame of id with an n byte payload would be
// admitted right now
func (p *Port) CanSend(id CommandID, n int) bool {
	size := p.registry.MaxWireSize(id)
	if size == 0 {
		return false
	}
	if wire := n + ControlSize; wire > size {
		size = wire
	}
	if p.Out.Free() < size {
		return false
	}
	return !(p.busy && p.gated(id))
}

// Send admits and queues a frame. It returns false, queuing nothing, when
// the outbound queue lacks room for the command's maximum wire size or the
// busy gate is closed for it. Callers retry on their own schedule.
func (p *Port) Send(id CommandID, payload []byte) bool {
	size := p.registry.MaxWireSize(id)
	if size == 0 {
		p.stats.RefusedSilent++
		return false
	}
	if wire := len(payload) + ControlSize; wire > size {
		size = wire
	}
	if free := p.Out.Free(); free < size {
		p.stats.RefusedSize++
		if glog.V(2) {
			glog.Infof("%s: refused %s, %d free < %d", p.name, id, free, size)
		}
		return false
	}
	if p.busy && p.gated(id) {
		p.stats.RefusedBusy++
		if glog.V(2) {
			glog.Infof("%s: refused %s, busy", p.name, id)
		}
		return false
	}

	p.busy = true
	p.Out.Write(Encode(id, payload))
	p.stats.Sent++
	if glog.V(2) {
		glog.Infof("%s: queued %s (%d bytes)", p.name, id, len(payload))
	}
	return true
}

// SendString is Send with a string payload
func (p *Port) SendString(id CommandID, payload string) bool {
	return p.Send(id, []byte(payload))
}

// Process runs one control loop step: it reopens the busy gate once the
// outbound queue has drained, then decodes at most one inbound byte.
// Returns the frame completed by that byte, already dispatched, or nil.
func (p *Port) Process() *Frame {
	if p.Out.Empty() {
		p.busy = false
	}
	b, ok := p.In.Pop()
	if !ok {
		return nil
	}
	return p.decode(b)
}

// ProcessAll is Process draining every available inbound byte. Returns the
// number of frames dispatched.
func (p *Port) ProcessAll() int {
	if p.Out.Empty() {
		p.busy = false
	}
	n := 0
	for {
		b, ok := p.In.Pop()
		if !ok {
			return n
		}
		if p.decode(b) != nil {
			n++
		}
	}
}

func (p *Port) decode(b byte) *Frame {
	f, err := p.parser.DecodeByte(b)
	if err != nil && glog.V(2) {
		glog.Infof("%s: %v", p.name, err)
	}
	if f == nil {
		return nil
	}
	if glog.V(2) {
		glog.Infof("%s: received %s %q", p.name, f.ID(), f.Payload())
	}
	p.registry.Dispatch(f, p.iface)
	return f
}

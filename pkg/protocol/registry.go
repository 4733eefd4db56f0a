// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Handler processes a decoded frame. from names the transport it arrived on.
type Handler func(f *Frame, from Interface)

// Entry is one registered command
type Entry struct {
	ID          CommandID
	MaxWireSize int // 0 means the controller never emits this command
	Handler     Handler
}

// SizeTable lists the maximum wire size of each command a controller emits
type SizeTable map[CommandID]int

// Maximum wire sizes: 3 control bytes plus a 17 byte timestamp allowance
// where the payload is stamped.
var (
	BodySizes = SizeTable{
		CmdState: ControlSize + TimestampSize + 17,
		CmdStats: ControlSize,
		CmdData:  ControlSize + TimestampSize + StatsLength,
		CmdGPS:   ControlSize + TimestampSize + GPSMaxLength,
		CmdSound: ControlSize + 3,
	}
	EngineSizes = SizeTable{
		CmdStats: ControlSize + StatsLength,
		CmdData:  ControlSize + TimestampSize + StatsLength,
		CmdGPS:   ControlSize + TimestampSize + GPSMaxLength,
		CmdSound: ControlSize + 3,
		CmdSense: ControlSize + 5,
	}
	// ExternalSizes sizes Engine's client transport, which carries Body's
	// frames out and answers stats polls from the client
	ExternalSizes = SizeTable{
		CmdState: ControlSize + TimestampSize + 17,
		CmdStats: ControlSize + StatsLength,
		CmdData:  ControlSize + TimestampSize + StatsLength,
		CmdGPS:   ControlSize + TimestampSize + GPSMaxLength,
	}
)

// Registry maps command identifiers to their size limit and handler.
// Every known identifier is registered so the parser accepts it; only
// the handler and size differ per controller.
type Registry struct {
	entries map[CommandID]*Entry
}

// NewRegistry creates a registry with every command id and the given sizes
func NewRegistry(sizes SizeTable) *Registry {
	r := &Registry{entries: make(map[CommandID]*Entry, len(AllCommands))}
	for _, id := range AllCommands {
		r.entries[id] = &Entry{ID: id, MaxWireSize: sizes[id]}
	}
	return r
}

// Handle installs the handler for id, replacing any previous one
func (r *Registry) Handle(id CommandID, h Handler) {
	e, ok := r.entries[id]
	if !ok {
		e = &Entry{ID: id}
		r.entries[id] = e
	}
	e.Handler = h
}

// Registered reports whether id is a registered command
func (r *Registry) Registered(id CommandID) bool {
	_, ok := r.entries[id]
	return ok
}

// MaxWireSize returns the admission size of id, 0 if unknown
func (r *Registry) MaxWireSize(id CommandID) int {
	if e, ok := r.entries[id]; ok {
		return e.MaxWireSize
	}
	return 0
}

// Lookup returns the entry for id
func (r *Registry) Lookup(id CommandID) (Entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Dispatch runs the handler registered for the frame's command.
// Returns false when there is no handler.
func (r *Registry) Dispatch(f *Frame, from Interface) bool {
	e, ok := r.entries[f.ID()]
	if !ok || e.Handler == nil {
		return false
	}
	e.Handler(f, from)
	return true
}

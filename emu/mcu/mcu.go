/*
 * ucsim - MCU context: ties chips, address spaces, peripherals and the
 * scheduler together behind one struct passed explicitly to every
 * component.
 *
 * Copyright 2026, ucsim contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package mcu ties every other package in this module together behind
// one struct passed explicitly to callers, replacing the source's
// global error registries and global "application" object (spec §9):
// chips and address spaces the model registers, the peripheral list in
// registration order, the tick scheduler, the error classification
// tree, and the debugger's symbol table.
package mcu

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/drotos/ucsim/emu/addrspace"
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
	"github.com/drotos/ucsim/emu/errors"
	"github.com/drotos/ucsim/emu/hw"
	"github.com/drotos/ucsim/emu/scheduler"
	"github.com/drotos/ucsim/emu/vcd"
)

// Variable binds a debugger-visible symbol name to a cell and, for
// sub-word symbols, a bit range. BitHigh/BitLow are both -1 for a
// whole-word variable.
type Variable struct {
	Name    string
	Cell    *cell.Cell
	BitHigh int
	BitLow  int
}

// MCU is the simulation context. Zero value is not usable; build one
// with New.
type MCU struct {
	Cells     *cell.Table
	Errors    *errors.Tree
	Scheduler *scheduler.Scheduler

	spaces      map[string]*addrspace.Space
	spaceOrder  []string
	peripherals []hw.Peripheral

	byName map[string]*Variable
	byAddr []*Variable

	recorders []*vcd.Recorder

	stopReq atomic.Bool
}

// RequestStop asks the drive loop to halt at the next instruction
// boundary. Unlike posting CmdStop on the command channel, this is safe
// to call from inside the drive goroutine itself (a breakpoint sink, a
// VCD break-on-event callback), where a channel send would deadlock.
func (m *MCU) RequestStop() { m.stopReq.Store(true) }

// TakeStopRequest consumes a pending stop request, reporting whether
// one was set. Called by the drive loop each instruction boundary.
func (m *MCU) TakeStopRequest() bool { return m.stopReq.CompareAndSwap(true, false) }

// New creates an MCU with its own cell table, error tree (logging
// through log), and a scheduler running at xtalHz with clockPerCycle
// bus cycles per machine cycle.
func New(log *slog.Logger, xtalHz, clockPerCycle uint64) *MCU {
	return &MCU{
		Cells:     cell.NewTable(),
		Errors:    errors.NewTree(log),
		Scheduler: scheduler.New(xtalHz, clockPerCycle),
		spaces:    make(map[string]*addrspace.Space),
		byName:    make(map[string]*Variable),
	}
}

// AddSpace creates and registers a new address space covering
// [start,start+size), with this MCU's error tree as its error sink.
func (m *MCU) AddSpace(name string, start, size uint32) *addrspace.Space {
	s := addrspace.New(name, start, size, m.Errors)
	m.spaces[name] = s
	m.spaceOrder = append(m.spaceOrder, name)
	return s
}

// Space looks up a previously added address space by name.
func (m *MCU) Space(name string) (*addrspace.Space, bool) {
	s, ok := m.spaces[name]
	return s, ok
}

// Spaces returns every address space in the order it was added.
func (m *MCU) Spaces() []*addrspace.Space {
	out := make([]*addrspace.Space, 0, len(m.spaceOrder))
	for _, n := range m.spaceOrder {
		out = append(out, m.spaces[n])
	}
	return out
}

// AddPeripheral calls Init on p, then registers it with the scheduler in
// registration order (spec §4.10/§5: "peripherals tick in registration
// order").
func (m *MCU) AddPeripheral(p hw.Peripheral) {
	p.Init()
	m.peripherals = append(m.peripherals, p)
	m.Scheduler.Register(p)
}

// Peripherals returns every registered peripheral in registration order.
func (m *MCU) Peripherals() []hw.Peripheral { return m.peripherals }

// AttachRecorder registers a VCD recorder whose virtual time the
// drive loop keeps synchronized with the scheduler's rtime, so
// watchpoint writes land in the correct time bucket regardless of
// which debugger command started the recording (spec §4.11).
func (m *MCU) AttachRecorder(r *vcd.Recorder) {
	m.recorders = append(m.recorders, r)
}

// Recorders returns every attached VCD recorder.
func (m *MCU) Recorders() []*vcd.Recorder { return m.recorders }

// InvalidAddress and NonDecoded satisfy addrspace.ErrorSink by
// delegating to the error tree; kept here so callers that only see an
// *MCU (not its *errors.Tree field) can still pass it as an ErrorSink.
func (m *MCU) InvalidAddress(space string, addr uint32) { m.Errors.InvalidAddress(space, addr) }
func (m *MCU) NonDecoded(space string, addr uint32)      { m.Errors.NonDecoded(space, addr) }

// chip.New is the only constructor needed to build backing storage; it
// is re-exported here for callers that only import package mcu when
// wiring a model together.
func NewChip(name string, size, width int) *chip.Chip { return chip.New(name, size, width) }

// AddVariable binds name to a cell, optionally narrowed to
// [bitHigh,bitLow] (pass -1,-1 for a whole-word variable). Names must be
// unique; a duplicate name replaces the prior binding in both indices.
func (m *MCU) AddVariable(name string, c *cell.Cell, bitHigh, bitLow int) *Variable {
	v := &Variable{Name: name, Cell: c, BitHigh: bitHigh, BitLow: bitLow}
	if old, ok := m.byName[name]; ok {
		for i, x := range m.byAddr {
			if x == old {
				m.byAddr = append(m.byAddr[:i], m.byAddr[i+1:]...)
				break
			}
		}
	}
	m.byName[name] = v
	m.byAddr = append(m.byAddr, v)
	sort.Slice(m.byAddr, func(i, j int) bool {
		a, b := m.byAddr[i], m.byAddr[j]
		if a.Cell.Chip != b.Cell.Chip {
			return a.Cell.Chip.Name < b.Cell.Chip.Name
		}
		if a.Cell.Addr != b.Cell.Addr {
			return a.Cell.Addr < b.Cell.Addr
		}
		return a.BitHigh < b.BitHigh
	})
	return v
}

// Variable looks up a symbol by name.
func (m *MCU) Variable(name string) (*Variable, bool) {
	v, ok := m.byName[name]
	return v, ok
}

// VariablesByAddress returns every bound variable sorted by
// (chip, address, bit-range), for the debugger's "dump" column
// alignment.
func (m *MCU) VariablesByAddress() []*Variable { return m.byAddr }

// Reset tears the pending event queue, rings down every peripheral's
// Reset(), and zeros the scheduler's virtual time, mirroring
// emu/core.core's shutdown handling adapted to an always-available
// reset rather than a one-shot stop.
func (m *MCU) Reset() {
	for _, p := range m.peripherals {
		p.Reset()
	}
	m.Scheduler.Reset()
}

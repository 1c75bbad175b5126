/*
 * ucsim - Peripheral base: cell registration, partner events, IRQ sources.
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

// Package hw provides the embeddable plumbing every peripheral (clock
// tree, timer, UART, GPIO port) builds on: registered-cell bookkeeping,
// a partner-event fan-out replacing the source's global "happen"
// broadcast, and named interrupt sources. The source's per-register
// "updating" counter that told a peripheral's write masker whether the
// write came from software or from the peripheral's own event
// servicing is replaced by the explicit cell.Origin parameter already
// threaded through cell.HWRegister.WriteReg; Base needs no counter of
// its own.
package hw

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

// Peripheral is the contract every hardware model satisfies. Category
// identifies the kind ("clock", "timer", "uart", "gpio"); Instance
// distinguishes multiple copies of the same kind (UART1 vs UART2).
type Peripheral interface {
	cell.HWRegister
	Init()
	Reset()
	Tick(cycles uint64)
	Happen(src string, event string, params []uint32)
	Category() string
	Instance() int
}

// Partner receives broadcast events from other peripherals: clock
// on/off, reset, bank change.
type Partner interface {
	Happen(src string, event string, params []uint32)
}

// IRQSource is one named, level-latched interrupt line a peripheral
// owns. The scheduler's interrupt sweep (package scheduler) polls
// Pending across every registered source each tick boundary.
type IRQSource struct {
	Name    string
	Vector  int
	pending bool
}

// Raise latches the source pending; it stays pending until Clear.
func (s *IRQSource) Raise() { s.pending = true }

// Clear lowers the source, typically once the CPU has serviced it.
func (s *IRQSource) Clear() { s.pending = false }

// Pending reports the source's latched state.
func (s *IRQSource) Pending() bool { return s.pending }

// Base is embedded by every concrete peripheral. It does not itself
// implement cell.HWRegister.ReadReg/WriteReg — those stay on the
// embedding type, since each peripheral's register semantics differ —
// but it carries the shared bookkeeping every peripheral needs:
// registered device and configuration cells, partner subscriptions,
// and interrupt sources.
type Base struct {
	CategoryName string
	InstanceID   int
	BaseAddr     uint32

	regs       map[uint32]*cell.Cell
	configRegs map[uint32]*cell.Cell
	partners   []Partner
	irqs       []*IRQSource
}

// NewBase creates the shared state for a peripheral of the given
// category and instance, whose registers begin at baseAddr.
func NewBase(category string, instance int, baseAddr uint32) Base {
	return Base{
		CategoryName: category,
		InstanceID:   instance,
		BaseAddr:     baseAddr,
		regs:         make(map[uint32]*cell.Cell),
		configRegs:   make(map[uint32]*cell.Cell),
	}
}

func (b *Base) Category() string { return b.CategoryName }
func (b *Base) Instance() int    { return b.InstanceID }

// Offset normalizes addr to a register offset from BaseAddr, for
// peripherals that dispatch ReadReg/WriteReg with a switch over small
// offsets rather than absolute addresses. An addr below BaseAddr is
// treated as already relative, so callers holding only the offset (a
// register-window chip, a test poking registers directly) need not add
// the base back on first.
func (b *Base) Offset(addr uint32) uint32 {
	if addr >= b.BaseAddr {
		return addr - b.BaseAddr
	}
	return addr
}

// RegisterCell materializes the cell at addr on c and attaches a
// hw-callback operator routing reads and writes to owner (normally the
// concrete peripheral embedding this Base). Declares init()'s "register
// cells it cares about" step.
func (b *Base) RegisterCell(tbl *cell.Table, c *chip.Chip, addr uint32, owner cell.HWRegister) *cell.Cell {
	cl := tbl.Cell(c, addr)
	cl.Append(cell.NewHWCallback(owner, b.CategoryName))
	b.regs[addr] = cl
	return cl
}

// RegisterConfigCell is RegisterCell for a peripheral's out-of-band
// configuration pseudo-registers: debugger-only tunables like "turn off
// simulation" or "report received byte" that have no bus-visible
// address of their own.
func (b *Base) RegisterConfigCell(tbl *cell.Table, c *chip.Chip, addr uint32, owner cell.HWRegister) *cell.Cell {
	cl := tbl.Cell(c, addr)
	cl.Append(cell.NewHWCallback(owner, b.CategoryName+".config"))
	b.configRegs[addr] = cl
	return cl
}

// RegisteredCells returns every device-register cell this peripheral
// has registered through RegisterCell.
func (b *Base) RegisteredCells() map[uint32]*cell.Cell { return b.regs }

// AddPartner subscribes p to this peripheral's Notify broadcasts.
func (b *Base) AddPartner(p Partner) { b.partners = append(b.partners, p) }

// Notify fans an event out to every subscribed partner, mirroring the
// source's happen() broadcast for clock_on/clock_off/reset/bank_change.
func (b *Base) Notify(event string, params ...uint32) {
	for _, p := range b.partners {
		p.Happen(b.CategoryName, event, params)
	}
}

// AddIRQSource registers a new named interrupt line owned by this
// peripheral and returns it so the peripheral can Raise/Clear it.
func (b *Base) AddIRQSource(name string, vector int) *IRQSource {
	s := &IRQSource{Name: name, Vector: vector}
	b.irqs = append(b.irqs, s)
	return s
}

// IRQSources returns every interrupt source this peripheral owns, for
// the scheduler's pending-interrupt sweep.
func (b *Base) IRQSources() []*IRQSource { return b.irqs }

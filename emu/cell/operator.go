package cell

/*
 * ucsim - Operator chain: hw-callback, bank-switch, read/write breakpoints.
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

// Operator is an element of the chain attached to a Cell. Read and Write
// receive the owning cell and a continuation representing the rest of
// the chain (terminating in the raw masked slot access).
type Operator interface {
	Read(c *Cell, next func() uint32) uint32
	Write(c *Cell, val uint32, origin Origin, next func(uint32) uint32) uint32
	// Owner identifies what installed this operator (a peripheral or a
	// breakpoint), so Cell.Remove can find it again by identity.
	Owner() any
}

// HWRegister is the minimal surface a peripheral must expose to be
// attached via a hw-callback operator. It is intentionally narrower than
// the full hw.Peripheral interface to avoid an import cycle between
// package cell and package hw: hw.Base implements this directly.
type HWRegister interface {
	ReadReg(addr uint32) uint32
	WriteReg(addr uint32, val uint32, origin Origin) uint32
}

type hwCallbackOp struct {
	owner    HWRegister
	category string
}

// NewHWCallback attaches a peripheral's register read/write to a cell.
// On read it answers directly from the peripheral and does not chain
// further; on write it lets the peripheral rewrite the value first, then
// chains so later operators (breakpoints, the VCD recorder) still see
// the final value.
func NewHWCallback(owner HWRegister, category string) Operator {
	return &hwCallbackOp{owner: owner, category: category}
}

func (o *hwCallbackOp) Read(c *Cell, _ func() uint32) uint32 {
	return o.owner.ReadReg(c.Addr)
}

func (o *hwCallbackOp) Write(c *Cell, val uint32, origin Origin, next func(uint32) uint32) uint32 {
	val = o.owner.WriteReg(c.Addr, val, origin)
	return next(val)
}

func (o *hwCallbackOp) Owner() any { return o.owner }

// Banker recomputes and rebinds the active bank of a banked address
// range after its control register is written.
type Banker interface {
	Activate()
}

type bankSwitchOp struct {
	owner Banker
}

// NewBankSwitch installs a prepend operator on a banker's control cell:
// the raw selector write is committed to the register first, then the
// banker recomputes and rebinds the banked decoder.
func NewBankSwitch(owner Banker) Operator {
	return &bankSwitchOp{owner: owner}
}

func (o *bankSwitchOp) Read(_ *Cell, next func() uint32) uint32 {
	return next()
}

func (o *bankSwitchOp) Write(_ *Cell, val uint32, _ Origin, next func(uint32) uint32) uint32 {
	result := next(val)
	o.owner.Activate()
	return result
}

func (o *bankSwitchOp) Owner() any { return o.owner }

// Breakpoint gates whether an access should be reported to the CPU's
// event queue. Owner identifies the breakpoint for later removal.
type Breakpoint interface {
	DoHit(c *Cell) bool
	Owner() any
}

// EventSink receives breakpoints that fired so the CPU can act on them
// between instructions.
type EventSink interface {
	Enqueue(bp Breakpoint)
}

type readBreakOp struct {
	bp   Breakpoint
	sink EventSink
}

// NewReadBreak creates a read-event-break operator: on read it tests the
// breakpoint's gate and enqueues it if true, then always chains.
func NewReadBreak(bp Breakpoint, sink EventSink) Operator {
	return &readBreakOp{bp: bp, sink: sink}
}

func (o *readBreakOp) Read(c *Cell, next func() uint32) uint32 {
	if o.bp.DoHit(c) {
		o.sink.Enqueue(o.bp)
	}
	return next()
}

func (o *readBreakOp) Write(_ *Cell, val uint32, _ Origin, next func(uint32) uint32) uint32 {
	return next(val)
}

func (o *readBreakOp) Owner() any { return o.bp.Owner() }

type writeBreakOp struct {
	bp   Breakpoint
	sink EventSink
}

// NewWriteBreak creates a write-event-break operator: on write it tests
// the breakpoint's gate and enqueues it if true, then always chains.
func NewWriteBreak(bp Breakpoint, sink EventSink) Operator {
	return &writeBreakOp{bp: bp, sink: sink}
}

func (o *writeBreakOp) Read(_ *Cell, next func() uint32) uint32 {
	return next()
}

func (o *writeBreakOp) Write(c *Cell, val uint32, _ Origin, next func(uint32) uint32) uint32 {
	if o.bp.DoHit(c) {
		o.sink.Enqueue(o.bp)
	}
	return next(val)
}

func (o *writeBreakOp) Owner() any { return o.bp.Owner() }

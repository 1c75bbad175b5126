/*
 * ucsim - Addressable cell: a chip slot plus its operator chain.
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

// Package cell implements the addressable word: a reference into a chip
// slot, its width mask, and the ordered chain of operators that every
// observable read or write passes through.
package cell

import "github.com/drotos/ucsim/emu/chip"

// Origin distinguishes a register write driven by software (the CPU, a
// debugger poke) from one driven by hardware (a peripheral updating its
// own register during event servicing). Replaces the source's "updating"
// counter with an explicit parameter threaded through the write path.
type Origin int

const (
	Software Origin = iota
	Hardware
)

type node struct {
	op   Operator
	next *node
}

// Cell is the addressable word. It is lazily created on first access via
// a Table and lives as long as its owning chip does.
type Cell struct {
	Chip *chip.Chip
	Addr uint32
	mask uint32
	head *node
}

// Mask returns (1<<width)-1 for this cell's chip.
func (c *Cell) Mask() uint32 { return c.mask }

// OwnedBy reports whether ch owns this cell and, if so, the slot offset
// it backs within ch.
func (c *Cell) OwnedBy(ch *chip.Chip) (uint32, bool) {
	if c.Chip != ch {
		return 0, false
	}
	return c.Addr, true
}

// Read walks the operator chain head-to-tail. A hw-callback operator
// answers for its own cell and does not delegate further; every other
// operator kind may inspect the value and then delegates to the rest of
// the chain. The raw slot value, masked, is returned once the chain is
// exhausted.
func (c *Cell) Read() uint32 {
	return c.readFrom(c.head)
}

func (c *Cell) readFrom(n *node) uint32 {
	if n == nil {
		return c.Chip.Get(c.Addr) & c.mask
	}
	return n.op.Read(c, func() uint32 { return c.readFrom(n.next) })
}

// ReadRaw bypasses hw-callback operators (so the VCD recorder, or
// anything else that needs the "underlying" value, can read through a
// peripheral's view of the register) but still honors every other
// operator kind in the chain.
func (c *Cell) ReadRaw() uint32 {
	return c.readRawFrom(c.head)
}

func (c *Cell) readRawFrom(n *node) uint32 {
	if n == nil {
		return c.Chip.Get(c.Addr) & c.mask
	}
	if _, isHW := n.op.(*hwCallbackOp); isHW {
		return c.readRawFrom(n.next)
	}
	return n.op.Read(c, func() uint32 { return c.readRawFrom(n.next) })
}

// Write walks the operator chain head-to-tail. Each operator may
// transform the value, record an event, or short-circuit; the terminal
// effect writes value&mask to the underlying slot unless it is
// read-only. Returns the value as it emerges from the full chain.
func (c *Cell) Write(val uint32, origin Origin) uint32 {
	return c.writeFrom(c.head, val, origin)
}

func (c *Cell) writeFrom(n *node, val uint32, origin Origin) uint32 {
	if n == nil {
		val &= c.mask
		c.Chip.Set(c.Addr, val)
		return val
	}
	return n.op.Write(c, val, origin, func(v uint32) uint32 { return c.writeFrom(n.next, v, origin) })
}

// Append adds an operator at the tail of the chain, so hw-callbacks
// appended later see values after earlier transforms have run.
func (c *Cell) Append(op Operator) {
	n := &node{op: op}
	if c.head == nil {
		c.head = n
		return
	}
	last := c.head
	for last.next != nil {
		last = last.next
	}
	last.next = n
}

// Prepend adds an operator at the head of the chain. Reserved for
// bank-switchers, which must observe the raw selector write before any
// other operator transforms it.
func (c *Cell) Prepend(op Operator) {
	c.head = &node{op: op, next: c.head}
}

// Remove deletes the first operator in the chain whose Owner() equals
// owner (comparison by ==), matching a deleted breakpoint or a
// deregistering peripheral. Reports whether an operator was removed.
func (c *Cell) Remove(owner any) bool {
	var prev *node
	for n := c.head; n != nil; n = n.next {
		if n.op.Owner() == owner {
			if prev == nil {
				c.head = n.next
			} else {
				prev.next = n.next
			}
			return true
		}
		prev = n
	}
	return false
}

type cellKey struct {
	c    *chip.Chip
	addr uint32
}

// Table lazily instantiates and memoizes Cells per (chip, address).
type Table struct {
	cells map[cellKey]*Cell
}

// NewTable creates an empty cell table, typically one per MCU.
func NewTable() *Table {
	return &Table{cells: make(map[cellKey]*Cell)}
}

// Cell returns the Cell for (c, addr), creating it on first access.
func (t *Table) Cell(c *chip.Chip, addr uint32) *Cell {
	key := cellKey{c, addr}
	if existing, ok := t.cells[key]; ok {
		return existing
	}
	created := &Cell{Chip: c, Addr: addr, mask: c.Mask()}
	t.cells[key] = created
	return created
}

// Lookup returns the Cell for (c, addr) only if it has already been
// materialized, without creating one.
func (t *Table) Lookup(c *chip.Chip, addr uint32) (*Cell, bool) {
	existing, ok := t.cells[cellKey{c, addr}]
	return existing, ok
}

/*
 * ucsim - Address space: decoder list, overlap resolution, dummy cell.
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

// Package addrspace maps (space, address) onto (chip, chip address). It
// supports splitting, shrinking and fully replacing overlapping
// decoders, a run-time bank-switching specialization, and a
// bit-to-bit-position specialization.
//
// The worked example in the specification's testable-properties section
// treats as_begin/as_end as an inclusive range (closed interval): a
// 0x1000-0x1FFF decoder split by a 0x1400-0x17FF one yields survivors
// ending at 0x13FF and starting at 0x1800. This package follows that
// example rather than the prose's "half-open" adjective.
package addrspace

import (
	"math/rand"
	"sort"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

// ErrorSink is how a Space reports invalid or non-decoded accesses. It is
// a narrow interface (rather than a concrete MCU type) so this package
// does not depend on package mcu.
type ErrorSink interface {
	InvalidAddress(space string, addr uint32)
	NonDecoded(space string, addr uint32)
}

// decoder is the internal shape every mapping kind (linear, banked,
// bit-bander) implements so overlap resolution can treat them
// uniformly.
type decoder interface {
	begin() uint32
	end() uint32
	// clone returns a copy of this decoder narrowed to [nb,ne], with its
	// target re-based to match (used when splitting/shrinking).
	clone(nb, ne uint32) decoder
	markDecoded()
	// cellFor resolves addr to the backing cell and, for bit-banded
	// decoders, the single bit mask within that cell (0 for whole-word
	// decoders).
	cellFor(addr uint32, tbl *cell.Table) (*cell.Cell, uint32)
}

// Space is one logical memory of the MCU: code, data, SFR, EEPROM,
// option bytes.
type Space struct {
	Name      string
	Start     uint32
	Size      uint32
	decoders  []decoder
	Errs      ErrorSink
	dummyCell *cell.Cell
}

// New creates an address space covering [start, start+size).
func New(name string, start, size uint32, errs ErrorSink) *Space {
	dc := dummyChip()
	dummy := dummyTable().Cell(dc, 0)
	return &Space{Name: name, Start: start, Size: size, Errs: errs, dummyCell: dummy}
}

var (
	sharedDummyChip  *chip.Chip
	sharedDummyTable *cell.Table
)

// dummyChip returns the one shared dummy chip backing every space's
// dummy cell, per the specification's "singleton dummy cell (shared
// across all spaces)".
func dummyChip() *chip.Chip {
	if sharedDummyChip == nil {
		sharedDummyChip = chip.New("dummy", 1, 32)
	}
	return sharedDummyChip
}

func dummyTable() *cell.Table {
	if sharedDummyTable == nil {
		sharedDummyTable = cell.NewTable()
		dc := sharedDummyTable.Cell(dummyChip(), 0)
		dc.Append(dummyOp{})
	}
	return sharedDummyTable
}

type dummyOp struct{}

func (dummyOp) Read(c *cell.Cell, _ func() uint32) uint32 {
	return uint32(rand.Int63()) & c.Mask()
}

// Write discards the value: it does not chain to the terminal slot.
func (dummyOp) Write(_ *cell.Cell, val uint32, _ cell.Origin, _ func(uint32) uint32) uint32 {
	return val
}

func (dummyOp) Owner() any { return dummyOp{} }

func inRange(a, b, lo, hi uint32) bool { return a >= lo && b <= hi }

func overlaps(aBegin, aEnd, bBegin, bEnd uint32) bool {
	return aBegin <= bEnd && bBegin <= aEnd
}

// activate inserts d into the decoder list, running overlap resolution
// against every existing decoder of this space (spec §4.3):
//  1. a decoder fully covered by d is removed;
//  2. a decoder covering d is split around the hole;
//  3. a decoder partially overlapping d is shrunk (or removed if the
//     shrink would empty it).
func (s *Space) activate(d decoder) {
	var survivors []decoder
	for _, e := range s.decoders {
		if !overlaps(e.begin(), e.end(), d.begin(), d.end()) {
			survivors = append(survivors, e)
			continue
		}
		switch {
		case inRange(e.begin(), e.end(), d.begin(), d.end()):
			// e fully covered by d: drop it.
		case e.begin() < d.begin() && e.end() > d.end():
			// e fully covers d: split into two survivors around the hole.
			survivors = append(survivors, e.clone(e.begin(), d.begin()-1))
			survivors = append(survivors, e.clone(d.end()+1, e.end()))
		case e.begin() < d.begin():
			// overlap on e's right edge: shrink from the right.
			survivors = append(survivors, e.clone(e.begin(), d.begin()-1))
		case e.end() > d.end():
			// overlap on e's left edge: shrink from the left.
			survivors = append(survivors, e.clone(d.end()+1, e.end()))
		default:
			// e is fully covered in another orientation; drop it.
		}
	}
	survivors = append(survivors, d)
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].begin() < survivors[j].begin() })
	s.decoders = survivors
	d.markDecoded()
}

// deactivate removes d from the decoder list by identity.
func (s *Space) deactivate(d decoder) {
	for i, e := range s.decoders {
		if e == d {
			s.decoders = append(s.decoders[:i], s.decoders[i+1:]...)
			return
		}
	}
}

// find returns the decoder covering addr, if any. Decoders are kept
// sorted by begin() and there are typically fewer than 16 per space, so
// a linear scan is sufficient.
func (s *Space) find(addr uint32) decoder {
	for _, d := range s.decoders {
		if addr >= d.begin() && addr <= d.end() {
			return d
		}
	}
	return nil
}

func (s *Space) validAddr(addr uint32) bool {
	return addr >= s.Start && addr < s.Start+s.Size
}

func (s *Space) resolve(addr uint32, tbl *cell.Table) (*cell.Cell, uint32, bool) {
	if !s.validAddr(addr) {
		s.Errs.InvalidAddress(s.Name, addr)
		return nil, 0, false
	}
	d := s.find(addr)
	if d == nil {
		s.Errs.NonDecoded(s.Name, addr)
		return nil, 0, false
	}
	cl, bit := d.cellFor(addr, tbl)
	return cl, bit, true
}

// Read resolves addr and reads through the full operator chain.
func (s *Space) Read(addr uint32, tbl *cell.Table) uint32 {
	cl, bit, ok := s.resolve(addr, tbl)
	if !ok {
		return 0
	}
	if bit == 0 {
		return cl.Read()
	}
	if cl.Read()&bit != 0 {
		return 1
	}
	return 0
}

// ReadRaw resolves addr and reads bypassing hw-callback operators.
func (s *Space) ReadRaw(addr uint32, tbl *cell.Table) uint32 {
	cl, bit, ok := s.resolve(addr, tbl)
	if !ok {
		return 0
	}
	if bit == 0 {
		return cl.ReadRaw()
	}
	if cl.ReadRaw()&bit != 0 {
		return 1
	}
	return 0
}

// Get reads the raw chip slot, bypassing the operator chain entirely.
func (s *Space) Get(addr uint32, tbl *cell.Table) uint32 {
	if !s.validAddr(addr) {
		s.Errs.InvalidAddress(s.Name, addr)
		return 0
	}
	d := s.find(addr)
	if d == nil {
		s.Errs.NonDecoded(s.Name, addr)
		return 0
	}
	cl, bit := d.cellFor(addr, tbl)
	if bit == 0 {
		return cl.Chip.Get(cl.Addr)
	}
	if cl.Chip.Get(cl.Addr)&bit != 0 {
		return 1
	}
	return 0
}

// Write resolves addr and writes through the full operator chain.
func (s *Space) Write(addr uint32, val uint32, origin cell.Origin, tbl *cell.Table) {
	cl, bit, ok := s.resolve(addr, tbl)
	if !ok {
		return
	}
	if bit == 0 {
		cl.Write(val, origin)
		return
	}
	cur := cl.Read()
	if val&1 != 0 {
		cur |= bit
	} else {
		cur &^= bit
	}
	cl.Write(cur, origin)
}

// Set writes the raw chip slot (respecting read-only), bypassing the
// operator chain.
func (s *Space) Set(addr uint32, val uint32, tbl *cell.Table) {
	if !s.validAddr(addr) {
		s.Errs.InvalidAddress(s.Name, addr)
		return
	}
	d := s.find(addr)
	if d == nil {
		s.Errs.NonDecoded(s.Name, addr)
		return
	}
	cl, bit := d.cellFor(addr, tbl)
	if bit == 0 {
		cl.Chip.Set(cl.Addr, val)
		return
	}
	cur := cl.Chip.Get(cl.Addr)
	if val&1 != 0 {
		cur |= bit
	} else {
		cur &^= bit
	}
	cl.Chip.Set(cl.Addr, cur)
}

// Download writes the raw chip slot bypassing both the operator chain
// and the read-only flag. Used by firmware loaders.
func (s *Space) Download(addr uint32, val uint32, tbl *cell.Table) {
	if !s.validAddr(addr) {
		s.Errs.InvalidAddress(s.Name, addr)
		return
	}
	d := s.find(addr)
	if d == nil {
		s.Errs.NonDecoded(s.Name, addr)
		return
	}
	cl, _ := d.cellFor(addr, tbl)
	cl.Chip.Download(cl.Addr, val)
}

// SetBit1 ORs bits into the resolved cell's raw slot.
func (s *Space) SetBit1(addr uint32, bits uint32, tbl *cell.Table) {
	cl, _, ok := s.resolve(addr, tbl)
	if !ok {
		return
	}
	cl.Chip.Set(cl.Addr, cl.Chip.Get(cl.Addr)|bits)
}

// SetBit0 clears bits from the resolved cell's raw slot.
func (s *Space) SetBit0(addr uint32, bits uint32, tbl *cell.Table) {
	cl, _, ok := s.resolve(addr, tbl)
	if !ok {
		return
	}
	cl.Chip.Set(cl.Addr, cl.Chip.Get(cl.Addr)&^bits)
}

// GetCell returns the Cell backing addr so a caller can install
// operators (breakpoints, hw-callbacks) directly. Returns the shared
// dummy cell when the address is not decoded, so callers need no nil
// check; dummy reads are random and dummy writes are discarded.
func (s *Space) GetCell(addr uint32, tbl *cell.Table) *cell.Cell {
	if !s.validAddr(addr) {
		s.Errs.InvalidAddress(s.Name, addr)
		return s.dummyCell
	}
	d := s.find(addr)
	if d == nil {
		s.Errs.NonDecoded(s.Name, addr)
		return s.dummyCell
	}
	cl, _ := d.cellFor(addr, tbl)
	return cl
}

// Disjoint reports whether every pair of active decoders satisfies the
// non-overlap invariant. Exposed for tests.
func (s *Space) Disjoint() bool {
	for i := 0; i < len(s.decoders); i++ {
		for j := i + 1; j < len(s.decoders); j++ {
			a, b := s.decoders[i], s.decoders[j]
			if overlaps(a.begin(), a.end(), b.begin(), b.end()) {
				return false
			}
		}
	}
	return true
}

// DecoderCount returns the number of currently active decoders.
func (s *Space) DecoderCount() int { return len(s.decoders) }

/*
 * ucsim - Flat backing storage for one memory or register chip.
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

// Package chip implements the flat, side-effect-free backing store that
// every Cell is ultimately layered on top of: a slot array plus a
// per-slot flag byte, with raw get/set/download and no operator chain.
package chip

import "math/rand"

// Per-slot flag bits.
const (
	FlagNone     uint8 = 0x00
	FlagReadOnly uint8 = 0x01 // Set() leaves the slot unchanged.
	FlagDecoded  uint8 = 0x02 // At least one active decoder maps this slot.
)

// Chip is the flat storage array for one logical piece of silicon: RAM,
// ROM, an SFR page, EEPROM, option bytes. Width is the slot width in
// bits; every stored value is masked to width on Set.
type Chip struct {
	Name  string
	Width int
	mask  uint32
	data  []uint32
	flags []uint8
}

// New allocates a chip of the given size (in slots) and word width (in
// bits, 1..32).
func New(name string, size int, width int) *Chip {
	return &Chip{
		Name:  name,
		Width: width,
		mask:  uint32(1)<<uint(width) - 1,
		data:  make([]uint32, size),
		flags: make([]uint8, size),
	}
}

// Size returns the number of addressable slots.
func (c *Chip) Size() int { return len(c.data) }

// Mask returns the width-derived mask, (1<<width)-1.
func (c *Chip) Mask() uint32 { return c.mask }

// FillConstant fills every slot with the given value, masked to width.
func (c *Chip) FillConstant(v uint32) {
	v &= c.mask
	for i := range c.data {
		c.data[i] = v
	}
}

// FillRandom fills every slot with a pseudo-random pattern, masked to
// width. Standard initialization for RAM so uninitialized reads are
// caught rather than silently returning zero.
func (c *Chip) FillRandom(r *rand.Rand) {
	for i := range c.data {
		c.data[i] = uint32(r.Uint32()) & c.mask
	}
}

// Get returns the raw slot value, bypassing read-only.
func (c *Chip) Get(addr uint32) uint32 {
	return c.data[addr]
}

// Set stores a value, masked to width, but leaves the slot unchanged
// when FlagReadOnly is set.
func (c *Chip) Set(addr uint32, v uint32) {
	if c.flags[addr]&FlagReadOnly != 0 {
		return
	}
	c.data[addr] = v & c.mask
}

// Download stores a value bypassing the read-only flag. Used by
// firmware loaders to initialize ROM/option-byte contents.
func (c *Chip) Download(addr uint32, v uint32) {
	c.data[addr] = v & c.mask
}

// GetFlag reports whether all bits of f are set on the slot's flag byte.
func (c *Chip) GetFlag(addr uint32, f uint8) bool {
	return c.flags[addr]&f == f
}

// SetFlag sets or clears the given flag bits on a slot.
func (c *Chip) SetFlag(addr uint32, f uint8, set bool) {
	if set {
		c.flags[addr] |= f
	} else {
		c.flags[addr] &^= f
	}
}

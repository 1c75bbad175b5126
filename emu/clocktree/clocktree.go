/*
 * ucsim - Clock tree: oscillator switch protocol and peripheral clock gating.
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

// Package clocktree models the STM8-shaped clock tree: an oscillator
// switch protocol (ICKR/ECKR/CMSR/SWR/SWCR), a system prescaler
// (CKDIVR), and a 24-bit peripheral clock gate (PCKENR1..3) that
// broadcasts clock_on/clock_off to every gated partner.
package clocktree

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/hw"
)

// Source is the oscillator a clock switch selects.
type Source uint32

const (
	HSI Source = iota
	LSI
	HSE
	LSE
)

// Register offsets from BaseAddr.
const (
	offICKR   = 0x00
	offECKR   = 0x01
	offCMSR   = 0x02 // read-only
	offSWR    = 0x03
	offSWCR   = 0x04
	offCKDIVR = 0x05
	offPCKENR1 = 0x06
	offPCKENR2 = 0x07
	offPCKENR3 = 0x08
)

const (
	ickrHSIEN  = 1 << 0
	ickrHSIRDY = 1 << 1
	ickrLSIEN  = 1 << 2
	ickrLSIRDY = 1 << 3

	eckrHSEEN  = 1 << 0
	eckrHSERDY = 1 << 1
	eckrLSEEN  = 1 << 2
	eckrLSERDY = 1 << 3

	swcrSWBSY = 1 << 0
	swcrSWEN  = 1 << 1
	swcrSWIEN = 1 << 2
)

// SourceFreqs maps each oscillator source to its nominal frequency in
// Hz; a model supplies the concrete values for its target MCU.
type SourceFreqs [4]uint64

// scheduler is the narrow surface ClockTree needs, kept separate from
// *scheduler.Scheduler to avoid an import cycle (clocktree is itself
// registered as a peripheral with the scheduler).
type scheduler interface {
	SetXtal(hz uint64)
}

// ClockTree is one instance of the clock and peripheral-gate block.
type ClockTree struct {
	hw.Base

	freqs     SourceFreqs
	sched     scheduler
	prescaler [8]uint64 // CKDIVR field value -> divisor, populated by the model.

	ickr uint32
	eckr uint32
	swr  uint32
	swcr uint32
	ckdivr uint32
	pckenr [3]uint32

	active Source

	gateBit   map[hw.Partner]int
	gateOrder []hw.Partner
	gated     map[int]bool // last-broadcast clocked state per bit, for edge-only notification.
}

// New creates a clock tree with the given per-source frequencies and
// the scheduler it drives via SetXtal on every committed switch.
func New(category string, instance int, baseAddr uint32, freqs SourceFreqs, sched scheduler) *ClockTree {
	return &ClockTree{
		Base:   hw.NewBase(category, instance, baseAddr),
		freqs:  freqs,
		sched:  sched,
		gateBit: make(map[hw.Partner]int),
		gated:   make(map[int]bool),
	}
}

// AddGatedPartner subscribes p to PCKENR bit index bit (0..23,
// PCKENR1 holding bits 0..7, PCKENR2 8..15, PCKENR3 16..23). p.Happen
// receives "clock_on"/"clock_off" whenever that bit's gated state
// changes. Adding a partner sends nothing; its initial state arrives
// with the next Reset, which broadcasts every gate.
func (c *ClockTree) AddGatedPartner(p hw.Partner, bit int) {
	c.gateBit[p] = bit
	c.gateOrder = append(c.gateOrder, p)
	c.AddPartner(p)
}

// SetPrescalerTable installs the CKDIVR field-to-divisor mapping for
// this MCU (STM8 uses 1,2,4,8,16,32,64,128).
func (c *ClockTree) SetPrescalerTable(t [8]uint64) { c.prescaler = t }

func (c *ClockTree) Init() {}

// Reset restores power-on defaults: HSI enabled and ready (the only
// oscillator assumed always present), everything else disabled, no
// peripheral clocked.
func (c *ClockTree) Reset() {
	c.ickr = ickrHSIEN | ickrHSIRDY
	c.eckr = 0
	c.swr = uint32(HSI)
	c.swcr = 0
	c.ckdivr = 0
	c.pckenr = [3]uint32{}
	c.active = HSI
	if c.sched != nil {
		c.sched.SetXtal(c.effectiveFreq())
	}
	for bit := range c.gated {
		delete(c.gated, bit)
	}
	c.broadcastAllGates()
}

func (c *ClockTree) Happen(_ string, _ string, _ []uint32) {}

func (c *ClockTree) Tick(_ uint64) {}

// ready reports whether src's oscillator has its RDY status bit set.
func (c *ClockTree) ready(src Source) bool {
	switch src {
	case HSI:
		return c.ickr&ickrHSIRDY != 0
	case LSI:
		return c.ickr&ickrLSIRDY != 0
	case HSE:
		return c.eckr&eckrHSERDY != 0
	case LSE:
		return c.eckr&eckrLSERDY != 0
	}
	return false
}

func (c *ClockTree) effectiveFreq() uint64 {
	div := c.prescaler[c.ckdivr&0x07]
	if div == 0 {
		div = 1
	}
	return c.freqs[c.active] / div
}

// maybeCommit runs the clock switch protocol: if SWBSY is asserted,
// SWEN is set, and the requested source is ready, commit the switch.
func (c *ClockTree) maybeCommit() {
	if c.swcr&swcrSWBSY == 0 || c.swcr&swcrSWEN == 0 {
		return
	}
	req := Source(c.swr)
	if !c.ready(req) {
		return
	}
	c.active = req
	if c.sched != nil {
		c.sched.SetXtal(c.effectiveFreq())
	}
	c.Notify("clock_switch", uint32(req))
	c.swcr &^= swcrSWBSY
}

// broadcastAllGates recomputes and notifies every gated partner,
// regardless of whether its state changed (used on reset).
func (c *ClockTree) broadcastAllGates() {
	for _, p := range c.gateOrder {
		bit := c.gateBit[p]
		on := c.gateEnabled(bit)
		c.gated[bit] = on
		if on {
			p.Happen(c.CategoryName, "clock_on", nil)
		} else {
			p.Happen(c.CategoryName, "clock_off", nil)
		}
	}
}

// recomputeGates notifies only partners whose gated state changed.
func (c *ClockTree) recomputeGates() {
	for _, p := range c.gateOrder {
		bit := c.gateBit[p]
		on := c.gateEnabled(bit)
		if c.gated[bit] == on {
			continue
		}
		c.gated[bit] = on
		if on {
			p.Happen(c.CategoryName, "clock_on", nil)
		} else {
			p.Happen(c.CategoryName, "clock_off", nil)
		}
	}
}

func (c *ClockTree) gateEnabled(bit int) bool {
	reg := c.pckenr[bit/8]
	return reg&(1<<uint(bit%8)) != 0
}

// ReadReg implements cell.HWRegister.
func (c *ClockTree) ReadReg(addr uint32) uint32 {
	switch c.Offset(addr) {
	case offICKR:
		return c.ickr
	case offECKR:
		return c.eckr
	case offCMSR:
		return uint32(c.active)
	case offSWR:
		return c.swr
	case offSWCR:
		return c.swcr
	case offCKDIVR:
		return c.ckdivr
	case offPCKENR1:
		return c.pckenr[0]
	case offPCKENR2:
		return c.pckenr[1]
	case offPCKENR3:
		return c.pckenr[2]
	}
	return 0
}

// WriteReg implements cell.HWRegister. ICKR/ECKR preserve their
// hardware-managed RDY bits and the enable bit of the
// currently-active source (spec §4.6: "cannot be turned off while in
// use").
func (c *ClockTree) WriteReg(addr uint32, val uint32, _ cell.Origin) uint32 {
	switch c.Offset(addr) {
	case offICKR:
		preserved := c.ickr & (ickrHSIRDY | ickrLSIRDY)
		c.ickr = (val &^ (ickrHSIRDY | ickrLSIRDY)) | preserved
		if c.active == HSI {
			c.ickr |= ickrHSIEN
		}
		if c.ickr&ickrHSIEN != 0 {
			c.ickr |= ickrHSIRDY
		}
		if c.ickr&ickrLSIEN != 0 {
			c.ickr |= ickrLSIRDY
		}
		return c.ickr
	case offECKR:
		c.eckr = val &^ (eckrHSERDY | eckrLSERDY)
		if c.active == HSE {
			c.eckr |= eckrHSEEN
		}
		if c.eckr&eckrHSEEN != 0 {
			c.eckr |= eckrHSERDY
		}
		if c.eckr&eckrLSEEN != 0 {
			c.eckr |= eckrLSERDY
		}
		return c.eckr
	case offCMSR:
		return uint32(c.active) // read-only; writes ignored.
	case offSWR:
		c.swr = val & 0x03
		c.swcr |= swcrSWBSY
		c.maybeCommit()
		return c.swr
	case offSWCR:
		wasBusy := c.swcr&swcrSWBSY != 0
		c.swcr = val & (swcrSWEN | swcrSWIEN | swcrSWBSY)
		if wasBusy && c.swcr&swcrSWBSY == 0 {
			return c.swcr // software-cleared SWBSY cancels the pending switch.
		}
		c.maybeCommit()
		return c.swcr
	case offCKDIVR:
		c.ckdivr = val & 0x07
		if c.sched != nil {
			c.sched.SetXtal(c.effectiveFreq())
		}
		return c.ckdivr
	case offPCKENR1:
		c.pckenr[0] = val
		c.recomputeGates()
		return c.pckenr[0]
	case offPCKENR2:
		c.pckenr[1] = val
		c.recomputeGates()
		return c.pckenr[1]
	case offPCKENR3:
		c.pckenr[2] = val
		c.recomputeGates()
		return c.pckenr[2]
	}
	return val
}

// ActiveSource and EffectiveHz expose state for tests and the
// debugger without going through register addresses.
func (c *ClockTree) ActiveSource() Source  { return c.active }
func (c *ClockTree) EffectiveHz() uint64   { return c.effectiveFreq() }
func (c *ClockTree) SetOscillatorReady(src Source) {
	switch src {
	case HSI:
		c.ickr |= ickrHSIEN | ickrHSIRDY
	case LSI:
		c.ickr |= ickrLSIEN | ickrLSIRDY
	case HSE:
		c.eckr |= eckrHSEEN | eckrHSERDY
	case LSE:
		c.eckr |= eckrLSEEN | eckrLSERDY
	}
}

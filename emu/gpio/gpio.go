/*
 * ucsim - GPIO port and external-interrupt controller.
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

// Package gpio models a GPIO port (ODR/IDR/DDR/CR1/CR2) and the
// shared external-interrupt controller (EXTI_CR1..4, EXTI_CONF1/2,
// EXTI_SR1/2) its pins hook into, grounded on the STM8 GPIO/EXTI
// block. Per spec §9's open question on port/EXTI re-entry, a port
// update is modeled as one transaction: recompute computes the final
// (IDR, SR1, SR2) triple and applies it in a single pass rather than
// the source's guarded re-entrant write-back.
package gpio

import (
	"fmt"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/hw"
)

// Sensitivity is an EXTI line's trigger condition, spec §4.7 step 2.
type Sensitivity int

const (
	FallingAndLow Sensitivity = iota
	RisingOnly
	FallingOnly
	BothEdges
)

// Register offsets within a port, relative to its BaseAddr.
const (
	offODR = 0x00
	offIDR = 0x01
	offDDR = 0x02
	offCR1 = 0x03
	offCR2 = 0x04
)

// Port is one GPIO port instance (A, B, C, ...). Index is this port's
// position (0=A, 1=B, ...), used to find its EXTI sensitivity field
// and status bit.
type Port struct {
	hw.Base

	index int
	exti  *EXTI

	odr, idr, ddr, cr1, cr2 uint32
}

// NewPort creates a port and registers it with exti, which assigns it
// an index and an IRQ source for its aggregated port interrupt.
func NewPort(category string, baseAddr uint32, exti *EXTI) *Port {
	p := &Port{Base: hw.NewBase(category, 0, baseAddr), exti: exti}
	p.index = exti.registerPort(p)
	p.InstanceID = p.index
	return p
}

func (p *Port) Init()         {}
func (p *Port) Tick(_ uint64) {}
func (p *Port) Happen(_ string, _ string, _ []uint32) {}

func (p *Port) Reset() {
	p.odr, p.idr, p.ddr, p.cr1, p.cr2 = 0, 0, 0, 0, 0
	p.exti.recompute(p.index)
}

// Drive sets an externally-driven input level on pin (for pins
// configured as inputs), then recomputes EXTI state. A testbench or
// peripheral model calls this to simulate an external signal change.
func (p *Port) Drive(pin int, high bool) {
	mask := uint32(1) << uint(pin)
	if high {
		p.idr |= mask
	} else {
		p.idr &^= mask
	}
	p.exti.recompute(p.index)
}

func (p *Port) ReadReg(addr uint32) uint32 {
	switch p.Offset(addr) {
	case offODR:
		return p.odr
	case offIDR:
		return p.idr
	case offDDR:
		return p.ddr
	case offCR1:
		return p.cr1
	case offCR2:
		return p.cr2
	}
	return 0
}

func (p *Port) WriteReg(addr uint32, val uint32, _ cell.Origin) uint32 {
	switch p.Offset(addr) {
	case offODR:
		p.odr = val & 0xFF
		p.idr = (p.idr &^ p.ddr) | (p.odr & p.ddr) // output pins loop ODR back onto IDR.
	case offDDR:
		p.ddr = val & 0xFF
	case offCR1:
		p.cr1 = val & 0xFF
	case offCR2:
		p.cr2 = val & 0xFF
	case offIDR:
		return p.idr // read-only; ignore writes.
	}
	p.exti.recompute(p.index)
	switch p.Offset(addr) {
	case offODR:
		return p.odr
	case offDDR:
		return p.ddr
	case offCR1:
		return p.cr1
	case offCR2:
		return p.cr2
	}
	return val
}

// EXTI register offsets relative to its BaseAddr.
const (
	offEXTICR1   = 0x00
	offEXTICR2   = 0x01
	offEXTICR3   = 0x02
	offEXTICR4   = 0x03
	offEXTICONF1 = 0x04
	offEXTICONF2 = 0x05
	offEXTISR1   = 0x06
	offEXTISR2   = 0x07
)

// EXTI is the shared external-interrupt controller every GPIO port
// registers with.
type EXTI struct {
	hw.Base

	cr           [4]uint32
	conf1, conf2 uint32
	sr1, sr2     uint32

	ports    []*Port
	prevIDR  []uint32
	irqs     []*hw.IRQSource
}

// NewEXTI creates the controller. Ports register themselves via
// NewPort(..., exti).
func NewEXTI(category string, baseAddr uint32) *EXTI {
	return &EXTI{Base: hw.NewBase(category, 0, baseAddr)}
}

func (e *EXTI) Init()         {}
func (e *EXTI) Tick(_ uint64) {}
func (e *EXTI) Happen(_ string, _ string, _ []uint32) {}

func (e *EXTI) Reset() {
	e.cr = [4]uint32{}
	e.conf1, e.conf2 = 0, 0
	e.sr1, e.sr2 = 0, 0
	for i := range e.prevIDR {
		e.prevIDR[i] = 0
	}
	for _, irq := range e.irqs {
		irq.Clear()
	}
	for _, p := range e.ports {
		e.recompute(p.index)
	}
}

func (e *EXTI) IRQSources() []*hw.IRQSource { return e.irqs }

func (e *EXTI) registerPort(p *Port) int {
	idx := len(e.ports)
	e.ports = append(e.ports, p)
	e.prevIDR = append(e.prevIDR, 0)
	e.irqs = append(e.irqs, e.AddIRQSource(fmt.Sprintf("%s.port%d", e.CategoryName, idx), 0))
	return idx
}

// SetVector assigns the interrupt vector for port's aggregated EXTI
// line; models call this after every port has registered.
func (e *EXTI) SetVector(port int, vector int) {
	if port >= 0 && port < len(e.irqs) {
		e.irqs[port].Vector = vector
	}
}

func (e *EXTI) sensitivity(port int) Sensitivity {
	crIdx := port / 4
	shift := uint(port%4) * 2
	return Sensitivity((e.cr[crIdx] >> shift) & 0x3)
}

// recompute is the single-transaction port/EXTI update: it computes
// which pins trigger given the current sensitivity and CR2/DDR masks,
// then applies the resulting status bit once.
func (e *EXTI) recompute(port int) {
	p := e.ports[port]
	cur := p.idr
	prev := e.prevIDR[port]
	sens := e.sensitivity(port)

	var levelLow, edge bool
	for pin := 0; pin < 8; pin++ {
		mask := uint32(1) << uint(pin)
		if p.ddr&mask != 0 || p.cr2&mask == 0 {
			continue
		}
		curBit := cur&mask != 0
		prevBit := prev&mask != 0
		switch sens {
		case FallingAndLow:
			if !curBit {
				levelLow = true
			}
		case RisingOnly:
			if curBit && !prevBit {
				edge = true
			}
		case FallingOnly:
			if !curBit && prevBit {
				edge = true
			}
		case BothEdges:
			if curBit != prevBit {
				edge = true
			}
		}
	}
	e.prevIDR[port] = cur

	bit := uint(port % 8)
	srPtr := &e.sr1
	if port >= 8 {
		srPtr = &e.sr2
	}
	switch {
	case sens == FallingAndLow:
		if levelLow {
			*srPtr |= 1 << bit
		} else {
			*srPtr &^= 1 << bit // hardware clears automatically once the level condition ends.
		}
	case edge:
		*srPtr |= 1 << bit // edge modes latch; only a software W1C clears them.
	}

	if *srPtr&(1<<bit) != 0 {
		e.irqs[port].Raise()
	}
}

func (e *EXTI) ReadReg(addr uint32) uint32 {
	switch e.Offset(addr) {
	case offEXTICR1:
		return e.cr[0]
	case offEXTICR2:
		return e.cr[1]
	case offEXTICR3:
		return e.cr[2]
	case offEXTICR4:
		return e.cr[3]
	case offEXTICONF1:
		return e.conf1
	case offEXTICONF2:
		return e.conf2
	case offEXTISR1:
		return e.sr1
	case offEXTISR2:
		return e.sr2
	}
	return 0
}

// WriteReg implements cell.HWRegister. EXTI_SR writes are
// write-one-to-clear (spec §4.7): the port replaces the incoming
// value with current &^ incoming. Writes to the CR/CONF registers
// change future sensitivity but do not themselves re-trigger recompute
// (the next port register write or Drive call will observe the new
// table).
func (e *EXTI) WriteReg(addr uint32, val uint32, _ cell.Origin) uint32 {
	switch e.Offset(addr) {
	case offEXTICR1:
		e.cr[0] = val & 0xFF
		return e.cr[0]
	case offEXTICR2:
		e.cr[1] = val & 0xFF
		return e.cr[1]
	case offEXTICR3:
		e.cr[2] = val & 0xFF
		return e.cr[2]
	case offEXTICR4:
		e.cr[3] = val & 0xFF
		return e.cr[3]
	case offEXTICONF1:
		e.conf1 = val & 0xFF
		return e.conf1
	case offEXTICONF2:
		e.conf2 = val & 0xFF
		return e.conf2
	case offEXTISR1:
		e.sr1 &^= val
		return e.sr1
	case offEXTISR2:
		e.sr2 &^= val
		return e.sr2
	}
	return val
}

// SR1 and SR2 expose the status registers for tests without going
// through register addresses.
func (e *EXTI) SR1() uint32 { return e.sr1 }
func (e *EXTI) SR2() uint32 { return e.sr2 }

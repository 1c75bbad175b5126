/*
 * ucsim - Timer: prescaled up/up-down counter with auto-reload and UIF.
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

// Package timer implements the generic up/up-down counter with
// prescaler, auto-reload and update-event interrupt generation that
// backs every concrete timer instance (basic/general/advanced,
// 8-bit/16-bit), grounded on the STM8 timer peripherals (TIM2-style
// general 16-bit timer, TIM4-style basic 8-bit timer).
package timer

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/hw"
)

// Kind is the timer's feature class, spec §4.8.
type Kind int

const (
	Basic Kind = iota
	General
	Advanced
)

// PrescalerForm selects how the prescaler register maps to a divider.
type PrescalerForm int

const (
	// PrescalerPow2 treats the field as a shift: cycles = 1<<field.
	PrescalerPow2 PrescalerForm = iota
	// PrescalerLinear treats the field as a straight preload:
	// cycles = preload+1.
	PrescalerLinear
)

// CR1 bits, shared by every instance.
const (
	cr1CEN  = 1 << 0
	cr1UDIS = 1 << 1
	cr1URS  = 1 << 2
	cr1OPM  = 1 << 3
	cr1DIR  = 1 << 4
	cr1CMS  = 1 << 5 // center-aligned mode select: nonzero enables up-down counting.
	cr1ARPE = 1 << 7
)

// Single-bit fields within IER, SR1 and EGR; every instance has exactly
// one update-event bit in each.
const (
	ierUIE = 1 << 0
	sr1UIF = 1 << 0
	egrUG  = 1 << 0
)

// Register offsets for the 16-bit general-purpose layout (grounded on
// STM8 TIM2/TIM3): CR1, IER, SR1, EGR, CNTRH, CNTRL, then either
// PSCRH/PSCRL+ARRH/ARRL (linear prescaler) or PSCR+ARRH/ARRL (pow2
// prescaler, one-byte field).
const (
	offCR1 = 0x00
	offIER = 0x01
	offSR1 = 0x02
	offEGR = 0x03
	offCNTH = 0x04
	offCNTL = 0x05
)

// Timer is one instance of the generic counter. Construct with New16
// or New8; do not build a zero Timer directly.
type Timer struct {
	hw.Base

	kind          Kind
	width         int
	mask          uint32
	prescalerForm PrescalerForm
	vector        int

	cr1 uint32
	ier uint32
	sr1 uint32

	cnt uint32

	arrPreload uint32
	arr        uint32

	pscPreload uint32 // linear: preload value; pow2: field value
	pscCounter uint32 // live down-counter to the next prescaler tick

	countingUp bool

	// 16-bit high-byte buffering: a high-byte write is held until the
	// matching low-byte write lands; a high-byte read snapshots the low.
	cntHighBuf    uint32
	haveCntHigh   bool
	cntLowLatch   uint32
	haveCntLatch  bool
	arrHighBuf    uint32
	haveARRHigh   bool
	pscHighBuf    uint32
	havePSCHigh   bool

	// Capture/compare channels (general and advanced timers only).
	ccrPreload  []uint32
	ccr         []uint32
	ccrHighBuf  []uint32
	haveCCRHigh []bool

	clocked bool

	irq   *hw.IRQSource
	ccIRQ *hw.IRQSource
}

// New16 creates a 16-bit timer (width=16) with the given kind,
// prescaler form, and the IRQ vector its update-event interrupt is
// wired to.
func New16(category string, instance int, baseAddr uint32, kind Kind, form PrescalerForm, vector int) *Timer {
	return newTimer(category, instance, baseAddr, kind, 16, form, vector)
}

// New8 creates an 8-bit basic timer (width=8), always pow2 prescaler
// form per spec §4.8's 3-bit field description.
func New8(category string, instance int, baseAddr uint32, vector int) *Timer {
	return newTimer(category, instance, baseAddr, Basic, 8, PrescalerPow2, vector)
}

func newTimer(category string, instance int, baseAddr uint32, kind Kind, width int, form PrescalerForm, vector int) *Timer {
	return &Timer{
		Base:          hw.NewBase(category, instance, baseAddr),
		kind:          kind,
		width:         width,
		mask:          uint32(1)<<uint(width) - 1,
		prescalerForm: form,
		vector:        vector,
		clocked:       true,
	}
}

// AddCompareChannels equips a general or advanced timer with n
// capture/compare channels whose match interrupts raise on vector.
// Channel i's flag and enable live in SR1/IER bit i+1; its compare
// register pair follows the ARR registers in the layout. Basic timers
// have no channels and ignore the call.
func (t *Timer) AddCompareChannels(n int, vector int) {
	if t.kind == Basic || n <= 0 {
		return
	}
	t.ccrPreload = make([]uint32, n)
	t.ccr = make([]uint32, n)
	t.ccrHighBuf = make([]uint32, n)
	t.haveCCRHigh = make([]bool, n)
	t.ccIRQ = t.AddIRQSource(t.CategoryName+".capcom", vector)
}

// Init registers this timer's cells and interrupt source. Satisfies
// hw.Peripheral.
func (t *Timer) Init() {
	t.irq = t.AddIRQSource(t.CategoryName+".update", t.vector)
}

// Reset restores power-on values: CEN clear, IER/SR1 clear, CNT/ARR/PSC
// zeroed except ARR which resets to its max value per reference-manual
// convention (an ARR of 0 would stall the counter at rollover).
func (t *Timer) Reset() {
	t.cr1 = 0
	t.ier = 0
	t.sr1 = 0
	t.cnt = 0
	t.arrPreload = t.mask
	t.arr = t.mask
	t.pscPreload = 0
	t.pscCounter = 0
	t.countingUp = true
	if t.irq != nil {
		t.irq.Clear()
	}
	for i := range t.ccr {
		t.ccrPreload[i] = 0
		t.ccr[i] = 0
		t.haveCCRHigh[i] = false
	}
	if t.ccIRQ != nil {
		t.ccIRQ.Clear()
	}
}

// Happen satisfies hw.Partner: a timer registered as a gated partner of
// the clock tree freezes while its peripheral clock is off.
func (t *Timer) Happen(_ string, event string, _ []uint32) {
	switch event {
	case "clock_off":
		t.clocked = false
	case "clock_on":
		t.clocked = true
	}
}

func (t *Timer) prescalerCycles() uint32 {
	if t.prescalerForm == PrescalerPow2 {
		return 1 << (t.pscPreload & 0xF)
	}
	return t.pscPreload + 1
}

// Tick advances the counter by cycles virtual bus cycles. Satisfies
// hw.Peripheral.
func (t *Timer) Tick(cycles uint64) {
	if !t.clocked || t.cr1&cr1CEN == 0 {
		return
	}
	for i := uint64(0); i < cycles; i++ {
		if t.pscCounter == 0 {
			t.pscCounter = t.prescalerCycles()
		}
		t.pscCounter--
		if t.pscCounter == 0 {
			t.advance()
		}
	}
}

func (t *Timer) bidir() bool { return t.cr1&cr1CMS != 0 }

// advance steps the counter one prescaled tick, fires an update event
// on rollover (up mode) or centre-turnaround (up-down mode), and checks
// the compare channels against the new count.
func (t *Timer) advance() {
	if !t.bidir() {
		if t.cnt >= t.arr {
			t.cnt = 0
			t.updateEvent(true)
			t.compareMatch()
			return
		}
		t.cnt++
		t.compareMatch()
		return
	}
	if t.countingUp {
		if t.cnt >= t.arr {
			t.countingUp = false
			t.updateEvent(true)
			return
		}
		t.cnt++
		t.compareMatch()
		return
	}
	if t.cnt == 0 {
		t.countingUp = true
		t.updateEvent(true)
		return
	}
	t.cnt--
	t.compareMatch()
}

// compareMatch sets channel i's SR1 flag (bit i+1) when the counter
// equals its compare value, raising the capture/compare interrupt if
// the matching IER bit is set.
func (t *Timer) compareMatch() {
	for i, v := range t.ccr {
		if t.cnt != v {
			continue
		}
		bit := uint32(1) << uint(i+1)
		t.sr1 |= bit
		if t.ier&bit != 0 && t.ccIRQ != nil {
			t.ccIRQ.Raise()
		}
	}
}

// updateEvent copies preload registers into their working registers
// (ARPE-gated for ARR), sets UIF, raises the interrupt unless update
// interrupt generation is disabled, and clears CEN in one-pulse mode.
// requestable is false for a UG-forced update when URS is set (spec
// §4.8: "no interrupt request if URS is set").
func (t *Timer) updateEvent(requestable bool) {
	if t.cr1&cr1ARPE != 0 {
		t.arr = t.arrPreload
	}
	if t.cr1&cr1UDIS != 0 {
		return
	}
	t.sr1 |= sr1UIF
	if requestable && t.ier&ierUIE != 0 {
		t.irq.Raise()
	}
	if t.cr1&cr1OPM != 0 {
		t.cr1 &^= cr1CEN
	}
}

// ForceUpdate implements the EGR.UG software-driven event: reload the
// prescaler and force an update event, suppressing the interrupt
// request when URS is set.
func (t *Timer) ForceUpdate() {
	t.pscCounter = t.prescalerCycles()
	t.updateEvent(t.cr1&cr1URS == 0)
}

// Counter, ARR, Prescaler and CEN expose state for tests and the
// debugger's "dump" command without going through register addresses.
func (t *Timer) Counter() uint32    { return t.cnt }
func (t *Timer) ARR() uint32        { return t.arr }
func (t *Timer) UIF() bool          { return t.sr1&sr1UIF != 0 }
func (t *Timer) Enabled() bool      { return t.cr1&cr1CEN != 0 }
func (t *Timer) SetCR1(v uint32)    { t.cr1 = v }
func (t *Timer) SetARR(v uint32)    { t.arrPreload = v; t.arr = v }
func (t *Timer) SetPrescaler(v uint32) { t.pscPreload = v }
func (t *Timer) SetIER(v uint32)    { t.ier = v }

// SetCompare sets channel ch's compare value directly.
func (t *Timer) SetCompare(ch int, v uint32) {
	t.ccrPreload[ch] = v & t.mask
	t.ccr[ch] = t.ccrPreload[ch]
}

// CompareFlag reports channel ch's match flag (SR1 bit ch+1).
func (t *Timer) CompareFlag(ch int) bool { return t.sr1&(1<<uint(ch+1)) != 0 }

// ReadReg and WriteReg implement cell.HWRegister via hw-callback
// operators installed by config/models when it attaches this timer's
// cells.
func (t *Timer) ReadReg(addr uint32) uint32 {
	switch t.Offset(addr) {
	case offCR1:
		return t.cr1
	case offIER:
		return t.ier
	case offSR1:
		return t.sr1
	case offEGR:
		return 0
	case offCNTH:
		t.cntLowLatch = t.cnt & 0xFF
		t.haveCntLatch = true
		return (t.cnt >> 8) & 0xFF
	case offCNTL:
		if t.haveCntLatch {
			t.haveCntLatch = false
			return t.cntLowLatch
		}
		return t.cnt & 0xFF
	}
	return t.readExtended(t.Offset(addr))
}

func (t *Timer) WriteReg(addr uint32, val uint32, origin cell.Origin) uint32 {
	switch t.Offset(addr) {
	case offCR1:
		t.cr1 = val & 0xBF // ARPE(0x80) preserved by caller's mask convention; URS/OPM/etc. all software-writable.
		return t.cr1
	case offIER:
		mask := uint32(1)
		for i := range t.ccr {
			mask |= 1 << uint(i+1)
		}
		t.ier = val & mask
		return t.ier
	case offSR1:
		// Write-one... actually write-zero-to-clear: a software write of
		// 0 to UIF clears it; hardware sets it directly via updateEvent.
		if origin == cell.Software {
			t.sr1 &= val
		}
		return t.sr1
	case offEGR:
		if val&egrUG != 0 {
			t.ForceUpdate()
		}
		return 0
	case offCNTH:
		t.cntHighBuf = val & 0xFF
		t.haveCntHigh = true
		return val
	case offCNTL:
		lo := val & 0xFF
		if t.haveCntHigh {
			t.cnt = ((t.cntHighBuf << 8) | lo) & t.mask
			t.haveCntHigh = false
		} else {
			t.cnt = (t.cnt&^0xFF | lo) & t.mask
		}
		return val
	}
	return t.writeExtended(t.Offset(addr), val)
}

// layout describes where, past CNTL, the prescaler and ARR registers
// fall. pscLo is only valid (has its own address) when the prescaler
// is linear; arrHi is only valid when width is 16.
type layout struct {
	pscHi    uint32
	pscLo    uint32
	hasPscLo bool
	arrHi    uint32
	hasArrHi bool
	arrLo    uint32
	ccBase   uint32 // first compare register; channel i at ccBase+2i (high), +2i+1 (low).
}

// extendedOffsets returns the prescaler and ARR register layout, which
// shifts depending on whether the prescaler is one byte (pow2) or two
// (linear) and whether the counter itself is 8 or 16 bits.
func (t *Timer) extendedOffsets() layout {
	next := uint32(offCNTL + 1)
	l := layout{pscHi: next}
	next++
	if t.prescalerForm == PrescalerLinear {
		l.pscLo = next
		l.hasPscLo = true
		next++
	}
	if t.width == 16 {
		l.arrHi = next
		l.hasArrHi = true
		next++
	}
	l.arrLo = next
	l.ccBase = next + 1
	return l
}

// readExtended/writeExtended handle the prescaler and ARR registers,
// whose offsets depend on prescalerForm and width.
func (t *Timer) readExtended(off uint32) uint32 {
	l := t.extendedOffsets()
	switch {
	case off == l.pscHi:
		if t.prescalerForm == PrescalerPow2 {
			return t.pscPreload & 0xF
		}
		t.pscHighBuf = (t.pscPreload >> 8) & 0xFF
		return t.pscHighBuf
	case l.hasPscLo && off == l.pscLo:
		return t.pscPreload & 0xFF
	case l.hasArrHi && off == l.arrHi:
		return (t.arrPreload >> 8) & 0xFF
	case off == l.arrLo:
		return t.arrPreload & 0xFF
	}
	if n := len(t.ccr); n > 0 && off >= l.ccBase && off < l.ccBase+uint32(2*n) {
		ch := int(off-l.ccBase) / 2
		if (off-l.ccBase)%2 == 0 {
			return (t.ccrPreload[ch] >> 8) & 0xFF
		}
		return t.ccrPreload[ch] & 0xFF
	}
	return 0
}

func (t *Timer) writeExtended(off uint32, val uint32) uint32 {
	l := t.extendedOffsets()
	switch {
	case off == l.pscHi:
		if t.prescalerForm == PrescalerPow2 {
			t.pscPreload = val & 0xF
			return t.pscPreload
		}
		t.pscHighBuf = val & 0xFF
		t.havePSCHigh = true
		return val
	case l.hasPscLo && off == l.pscLo:
		lo := val & 0xFF
		if t.havePSCHigh {
			t.pscPreload = (t.pscHighBuf << 8) | lo
			t.havePSCHigh = false
		} else {
			t.pscPreload = t.pscPreload&^0xFF | lo
		}
		return val
	case l.hasArrHi && off == l.arrHi:
		t.arrHighBuf = val & 0xFF
		t.haveARRHigh = true
		return val
	case off == l.arrLo:
		lo := val & 0xFF
		if t.haveARRHigh {
			t.arrPreload = ((t.arrHighBuf << 8) | lo) & t.mask
			t.haveARRHigh = false
		} else {
			t.arrPreload = (t.arrPreload&^0xFF | lo) & t.mask
		}
		if t.cr1&cr1ARPE == 0 {
			t.arr = t.arrPreload
		}
		return val
	}
	if n := len(t.ccr); n > 0 && off >= l.ccBase && off < l.ccBase+uint32(2*n) {
		ch := int(off-l.ccBase) / 2
		if (off-l.ccBase)%2 == 0 {
			t.ccrHighBuf[ch] = val & 0xFF
			t.haveCCRHigh[ch] = true
			return val
		}
		lo := val & 0xFF
		if t.haveCCRHigh[ch] {
			t.ccrPreload[ch] = ((t.ccrHighBuf[ch] << 8) | lo) & t.mask
			t.haveCCRHigh[ch] = false
		} else {
			t.ccrPreload[ch] = (t.ccrPreload[ch]&^0xFF | lo) & t.mask
		}
		t.ccr[ch] = t.ccrPreload[ch]
		return val
	}
	return val
}

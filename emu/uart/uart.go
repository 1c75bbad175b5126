/*
 * ucsim - UART: sample-clock baud generator, TX/RX shift registers.
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

// Package uart implements a 4x-oversampled serial port: baud divider
// from BRR1/BRR2, a transmit shift register driven one bit per
// `oversample` sample boundaries, and a receive path with RXNE/OR
// overrun detection, grounded on the STM8 UART peripheral's
// CR1/CR2/CR3/BRR1/BRR2/SR/DR register set.
package uart

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/hw"
)

const oversample = 4

// Register offsets from BaseAddr.
const (
	offSR   = 0x00
	offDR   = 0x01
	offBRR1 = 0x02
	offBRR2 = 0x03
	offCR1  = 0x04
	offCR2  = 0x05
	offCR3  = 0x06
)

// SR bits.
const (
	srTC   = 1 << 6
	srTXE  = 1 << 7
	srRXNE = 1 << 5
	srOR   = 1 << 3
	srIDLE = 1 << 4
)

// CR2 bits.
const (
	cr2TEN = 1 << 3
	cr2REN = 1 << 2
	cr2TIEN = 1 << 7
	cr2RIEN = 1 << 5
)

// Sink receives one transmitted byte at a time; a console or PTY
// backend in the model layer implements it.
type Sink interface {
	WriteByte(b byte)
}

// UART is one instance of the serial port.
type UART struct {
	hw.Base

	sink Sink

	sr, dr   uint32
	brr1, brr2 uint32
	cr1, cr2, cr3 uint32

	sampleDiv  uint32 // UART_DIV >> 4
	sampleCtr  uint32
	bitSampleCtr uint32 // counts oversample-many sample boundaries per bit.

	txActive bool
	txByte   uint32
	txBitPos int
	txBitTotal int

	rxByte uint32

	txIRQ *hw.IRQSource
	rxIRQ *hw.IRQSource
}

// New creates a UART instance transmitting to sink (nil discards TX
// output, as in a test harness with no console attached).
func New(category string, instance int, baseAddr uint32, sink Sink) *UART {
	return &UART{Base: hw.NewBase(category, instance, baseAddr), sink: sink}
}

func (u *UART) Init() {
	u.txIRQ = u.AddIRQSource(u.CategoryName+".tx", 0)
	u.rxIRQ = u.AddIRQSource(u.CategoryName+".rx", 0)
}

// SetVectors assigns the TX-empty and RX-not-empty interrupt vectors;
// models call this after Init since vectors are MCU-specific.
func (u *UART) SetVectors(txVector, rxVector int) {
	u.txIRQ.Vector = txVector
	u.rxIRQ.Vector = rxVector
}

func (u *UART) Reset() {
	u.sr = srTC | srTXE
	u.dr = 0
	u.brr1, u.brr2 = 0, 0
	u.cr1, u.cr2, u.cr3 = 0, 0, 0
	u.sampleCtr = 0
	u.bitSampleCtr = 0
	u.txActive = false
	u.recomputeBaud()
	u.txIRQ.Clear()
	u.rxIRQ.Clear()
}

func (u *UART) IRQSources() []*hw.IRQSource { return []*hw.IRQSource{u.txIRQ, u.rxIRQ} }

func (u *UART) Happen(_ string, event string, _ []uint32) {
	switch event {
	case "clock_off":
		u.sampleDiv = 0
	case "clock_on":
		u.recomputeBaud()
	}
}

// recomputeBaud derives UART_DIV from BRR1/BRR2 (spec §4.9), clipped
// to a minimum of 16, and the bit-time total from CR1.M/CR3.STOP.
func (u *UART) recomputeBaud() {
	div := (u.brr2>>4)<<12 | (u.brr1&0xFF)<<4 | (u.brr2 & 0x0F)
	if div < 16 {
		div = 16
	}
	u.sampleDiv = div >> 4

	dataBits := 8
	if u.cr1&(1<<4) != 0 { // M: 9-bit word length.
		dataBits = 9
	}
	stopBits := 1
	switch (u.cr3 >> 4) & 0x03 {
	case 0x02:
		stopBits = 2
	case 0x03:
		stopBits = 3 // 1.5 stop bits, rounded up for bit-time accounting.
	}
	u.txBitTotal = 1 + dataBits + stopBits // start + data + stop
}

// Tick advances the sample clock by cycles bus cycles and advances the
// TX shifter every `oversample` sample boundaries. Reception is not
// sampled here: received bytes arrive whole through Receive.
func (u *UART) Tick(cycles uint64) {
	if u.sampleDiv == 0 {
		return
	}
	for i := uint64(0); i < cycles; i++ {
		u.sampleCtr++
		if u.sampleCtr < u.sampleDiv {
			continue
		}
		u.sampleCtr = 0
		u.bitSampleCtr++
		if u.bitSampleCtr < oversample {
			continue
		}
		u.bitSampleCtr = 0
		u.advanceTX()
	}
}

// advanceTX shifts out one bit time of the active transmission. Bit 0
// is the start bit; the data bits follow; the remaining bit times are
// stop bits, after which TC is set.
func (u *UART) advanceTX() {
	if !u.txActive {
		return
	}
	u.txBitPos++
	if u.txBitPos == 1 {
		// Start bit time: nothing observable, shifter already loaded.
		return
	}
	if u.txBitPos >= u.txBitTotal {
		u.txActive = false
		u.sr |= srTC
		if u.sink != nil {
			u.sink.WriteByte(byte(u.txByte))
		}
		if u.cr2&cr2TIEN != 0 {
			u.txIRQ.Raise()
		}
	}
}

// Receive delivers one externally-received byte to the UART, setting
// OR if the previous byte has not been read yet (spec §4.9's RX
// completion rule).
func (u *UART) Receive(b byte) {
	if u.cr2&cr2REN == 0 {
		return
	}
	if u.sr&srRXNE != 0 {
		u.sr |= srOR
		return
	}
	u.rxByte = uint32(b)
	u.sr |= srRXNE
	if u.cr2&cr2RIEN != 0 {
		u.rxIRQ.Raise()
	}
}

// ReadReg implements cell.HWRegister.
func (u *UART) ReadReg(addr uint32) uint32 {
	switch u.Offset(addr) {
	case offSR:
		return u.sr
	case offDR:
		v := u.rxByte
		u.sr &^= srRXNE
		return v
	case offBRR1:
		return u.brr1
	case offBRR2:
		return u.brr2
	case offCR1:
		return u.cr1
	case offCR2:
		return u.cr2
	case offCR3:
		return u.cr3
	}
	return 0
}

// WriteReg implements cell.HWRegister. SR accepts only software
// writes of 0 to TC (spec §4.9: "only TC-to-zero writes are accepted
// on MCUs with read-only RXNE"); DR writes with TEN set start a
// transmission, setting TXE immediately (shifter loaded from the
// holding register) per scenario 4.
func (u *UART) WriteReg(addr uint32, val uint32, origin cell.Origin) uint32 {
	switch u.Offset(addr) {
	case offSR:
		if origin == cell.Software && val&srTC == 0 {
			u.sr &^= srTC
		}
		return u.sr
	case offDR:
		u.dr = val & 0xFF
		if u.cr2&cr2TEN != 0 {
			u.txByte = u.dr
			u.txActive = true
			u.txBitPos = 0
			u.sr |= srTXE
			u.sr &^= srTC
		}
		return u.dr
	case offBRR1:
		u.brr1 = val & 0xFF
		u.recomputeBaud()
		return u.brr1
	case offBRR2:
		u.brr2 = val & 0xFF
		u.recomputeBaud()
		return u.brr2
	case offCR1:
		u.cr1 = val
		u.recomputeBaud()
		return u.cr1
	case offCR2:
		u.cr2 = val
		return u.cr2
	case offCR3:
		u.cr3 = val
		u.recomputeBaud()
		return u.cr3
	}
	return val
}

// TC, TXE and RXNE expose status flags for tests without going
// through register addresses.
func (u *UART) TC() bool   { return u.sr&srTC != 0 }
func (u *UART) TXE() bool  { return u.sr&srTXE != 0 }
func (u *UART) RXNE() bool { return u.sr&srRXNE != 0 }
func (u *UART) OR() bool   { return u.sr&srOR != 0 }

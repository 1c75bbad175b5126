/*
 * ucsim - Synthetic exerciser CPU: a minimal fetch/execute/credit client.
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

// Package probe is NOT an instruction-set decoder: it is the minimal
// stand-in client of read/write/fetch the specification calls for so
// the scheduler/decoder/peripheral substrate has something driving it
// end to end in tests and the demo binary. A real port plugs a real
// ISA decode loop in at the same two seams: FetchFunc (how an opcode
// byte maps to an instruction length) and TakeVector (how an accepted
// interrupt redirects the program counter). Grounded in emu/test_dev's
// role as a minimal exercised device and emu/core.core's drive-loop
// shape (see emu/mcu.Run).
package probe

import (
	"github.com/drotos/ucsim/emu/addrspace"
	"github.com/drotos/ucsim/emu/cell"
)

// FetchFunc maps an opcode byte to an instruction length in bytes. The
// default table (DefaultLengths) is a flat one-byte-per-instruction
// model; callers with a richer synthetic program can supply their own.
type FetchFunc func(opcode uint32) int

// DefaultLengths treats every opcode as a single byte instruction.
func DefaultLengths(_ uint32) int { return 1 }

// CPU is the synthetic exerciser: it fetches from Code, advances PC by
// the fetched instruction's length, credits CyclesPerByte*length virtual
// cycles per step, and halts when it fetches HaltOpcode.
type CPU struct {
	Code          *addrspace.Space
	Cells         *cell.Table
	PC            uint32
	Length        FetchFunc
	CyclesPerByte uint64
	HaltOpcode    uint32
	StateName     string

	halted bool
	inISR  bool
	vector int
}

// New creates a probe CPU starting execution at pc.
func New(code *addrspace.Space, tbl *cell.Table, pc uint32) *CPU {
	return &CPU{
		Code:          code,
		Cells:         tbl,
		PC:            pc,
		Length:        DefaultLengths,
		CyclesPerByte: 1,
		HaltOpcode:    0xFF,
		StateName:     "main",
	}
}

// Step fetches one opcode, advances PC, and reports the cycles it
// consumed and whether the CPU remains runnable. Satisfies
// mcu.Driver.
func (c *CPU) Step() (cycles uint64, runnable bool) {
	if c.halted {
		return 0, false
	}
	opcode := c.Code.Read(c.PC, c.Cells)
	length := c.Length(opcode)
	if length <= 0 {
		length = 1
	}
	c.PC += uint32(length)
	if opcode == c.HaltOpcode {
		c.halted = true
	}
	return uint64(length) * c.CyclesPerByte, !c.halted
}

// State satisfies mcu.Driver, reporting the CPU-state name the named
// ticker filters match against ("main", "halt", or "isr" once
// TakeVector has run).
func (c *CPU) State() string {
	if c.inISR {
		return "isr"
	}
	if c.halted {
		return "halt"
	}
	return c.StateName
}

// InISR satisfies mcu.Driver.
func (c *CPU) InISR() bool { return c.inISR }

// TakeVector satisfies mcu.Driver: it redirects PC to vector and marks
// the probe as servicing an interrupt until ReturnFromISR is called.
func (c *CPU) TakeVector(vector int) {
	c.vector = vector
	c.PC = uint32(vector)
	c.inISR = true
}

// ReturnFromISR clears the in-ISR state a synthetic program sets once
// it has finished servicing the vector TakeVector redirected to.
func (c *CPU) ReturnFromISR() { c.inISR = false }

// Vector returns the last vector TakeVector redirected to.
func (c *CPU) Vector() int { return c.vector }

// Halted reports whether the probe has executed HaltOpcode.
func (c *CPU) Halted() bool { return c.halted }

// Resume clears a halted probe so it can be stepped again, e.g. after
// the debugger deposits a new PC.
func (c *CPU) Resume() { c.halted = false }

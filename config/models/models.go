/*
 * ucsim - Model builders: functions that wire chips, address-space
 * mappings and peripheral instances together for a caller building an
 * MCU.
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

// Package models provides builder functions for each peripheral kind
// (clock, timer, uart, gpio/exti), called directly by whoever assembles
// an MCU; nothing here registers with config/configparser. Each builder
// supplies the glue no single emu/* package owns: a chip wide enough to
// hold the peripheral's register file, a cell per offset routed to the
// peripheral through a cell.NewHWCallback operator, and a linear mapping of
// that chip into the caller's chosen address space. This replaces the
// source's config/debugconfig device table; there are no device
// numbers or channel paths in this domain, only named instances at
// fixed addresses within an mcu.MCU's spaces.
package models

import (
	"fmt"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/clocktree"
	"github.com/drotos/ucsim/emu/gpio"
	"github.com/drotos/ucsim/emu/mcu"
	"github.com/drotos/ucsim/emu/timer"
	"github.com/drotos/ucsim/emu/uart"
)

// Register-file sizes, in 32-bit slots, allocated per peripheral kind.
// Generous enough to cover every layout variant (e.g. timer's longest
// extended-offset case, a 16-bit linear-prescaler general timer)
// without each kind needing to expose its exact register count.
const (
	clockRegs = 9
	timer16Regs = 16
	timer8Regs  = 8
	uartRegs    = 7
	gpioRegs    = 5
	extiRegs    = 8
)

// regWindow translates the chip-relative cell addresses mapRegisters
// materializes back to the absolute register addresses a peripheral's
// ReadReg/WriteReg dispatch on via hw.Base.Offset.
type regWindow struct {
	owner cell.HWRegister
	base  uint32
}

func (r regWindow) ReadReg(addr uint32) uint32 { return r.owner.ReadReg(r.base + addr) }

func (r regWindow) WriteReg(addr uint32, val uint32, origin cell.Origin) uint32 {
	return r.owner.WriteReg(r.base+addr, val, origin)
}

// mapRegisters materializes count cells starting at chip offset 0,
// attaches owner's hw-callback operator to each, and maps the chip
// into space at [baseAddr, baseAddr+count).
func mapRegisters(m *mcu.MCU, space string, baseAddr uint32, count int, owner cell.HWRegister, label string) error {
	sp, ok := m.Space(space)
	if !ok {
		return fmt.Errorf("models: unknown address space %q", space)
	}
	c := mcu.NewChip(label, count, 32)
	win := regWindow{owner: owner, base: baseAddr}
	for i := 0; i < count; i++ {
		m.Cells.Cell(c, uint32(i)).Append(cell.NewHWCallback(win, label))
	}
	return sp.MapChip(baseAddr, baseAddr+uint32(count)-1, c, 0)
}

// nullSink discards everything a UART transmits; used when a
// configuration declares an instance without attaching a console.
type nullSink struct{}

func (nullSink) WriteByte(byte) {}

// ClockTree builds and registers a clock-tree instance at baseAddr in
// space, wired to drive the MCU's own scheduler crystal.
func ClockTree(m *mcu.MCU, space string, instance int, baseAddr uint32, freqs clocktree.SourceFreqs) (*clocktree.ClockTree, error) {
	ct := clocktree.New("clock", instance, baseAddr, freqs, m.Scheduler)
	if err := mapRegisters(m, space, baseAddr, clockRegs, ct, fmt.Sprintf("clock%d", instance)); err != nil {
		return nil, err
	}
	m.AddPeripheral(ct)
	return ct, nil
}

// Timer16 builds and registers a 16-bit timer instance.
func Timer16(m *mcu.MCU, space string, instance int, baseAddr uint32, kind timer.Kind, form timer.PrescalerForm, vector int) (*timer.Timer, error) {
	t := timer.New16("timer", instance, baseAddr, kind, form, vector)
	if err := mapRegisters(m, space, baseAddr, timer16Regs, t, fmt.Sprintf("timer%d", instance)); err != nil {
		return nil, err
	}
	m.AddPeripheral(t)
	return t, nil
}

// Timer8 builds and registers an 8-bit basic timer instance.
func Timer8(m *mcu.MCU, space string, instance int, baseAddr uint32, vector int) (*timer.Timer, error) {
	t := timer.New8("timer", instance, baseAddr, vector)
	if err := mapRegisters(m, space, baseAddr, timer8Regs, t, fmt.Sprintf("timer%d", instance)); err != nil {
		return nil, err
	}
	m.AddPeripheral(t)
	return t, nil
}

// UART builds and registers a UART instance. sink receives transmitted
// bytes; pass nil to discard them.
func UART(m *mcu.MCU, space string, instance int, baseAddr uint32, sink uart.Sink, txVector, rxVector int) (*uart.UART, error) {
	if sink == nil {
		sink = nullSink{}
	}
	u := uart.New("uart", instance, baseAddr, sink)
	if err := mapRegisters(m, space, baseAddr, uartRegs, u, fmt.Sprintf("uart%d", instance)); err != nil {
		return nil, err
	}
	m.AddPeripheral(u)
	u.SetVectors(txVector, rxVector)
	return u, nil
}

// EXTI builds and registers the shared external-interrupt controller
// every GPIOPort on this MCU must be built against.
func EXTI(m *mcu.MCU, space string, baseAddr uint32) (*gpio.EXTI, error) {
	e := gpio.NewEXTI("exti", baseAddr)
	if err := mapRegisters(m, space, baseAddr, extiRegs, e, "exti"); err != nil {
		return nil, err
	}
	m.AddPeripheral(e)
	return e, nil
}

// GPIOPort builds and registers one GPIO port against a shared EXTI
// controller previously built with EXTI.
func GPIOPort(m *mcu.MCU, space string, baseAddr uint32, exti *gpio.EXTI) (*gpio.Port, error) {
	p := gpio.NewPort("gpio", baseAddr, exti)
	if err := mapRegisters(m, space, baseAddr, gpioRegs, p, fmt.Sprintf("gpio%d", p.Instance())); err != nil {
		return nil, err
	}
	m.AddPeripheral(p)
	return p, nil
}

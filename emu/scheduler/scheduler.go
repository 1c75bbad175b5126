/*
 * ucsim - Tick scheduler: virtual time, peripheral fan-out, interrupt sweep.
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

// Package scheduler drives every peripheral's tick(cycles) once per
// instruction boundary, sweeps for pending interrupts, and hosts the
// one-shot virtual-time event queue and the debugger's named-ticker
// facility. Nothing here suspends: Credit is synchronous and bounded,
// matching the single-threaded cooperative model.
package scheduler

import "github.com/drotos/ucsim/emu/hw"

// IRQSourceProvider is implemented by any peripheral that owns one or
// more hw.IRQSource lines; Register discovers it via a type assertion
// so plain peripherals need not carry an empty IRQSources().
type IRQSourceProvider interface {
	IRQSources() []*hw.IRQSource
}

// Scheduler ties the virtual clock to real peripherals in registration
// order, per spec: "Peripherals tick in registration order."
type Scheduler struct {
	XtalHz        uint64
	ClockPerCycle uint64

	virtualTicks uint64
	peripherals  []hw.Peripheral
	providers    []IRQSourceProvider
	events       *EventQueue

	tickers     map[string]*Ticker
	tickerOrder []string
}

// New creates a scheduler with the given oscillator frequency and bus
// cycles per machine cycle.
func New(xtalHz, clockPerCycle uint64) *Scheduler {
	return &Scheduler{
		XtalHz:        xtalHz,
		ClockPerCycle: clockPerCycle,
		events:        NewEventQueue(),
		tickers:       make(map[string]*Ticker),
	}
}

// Events returns the one-shot event queue peripherals schedule
// update/rollover events on.
func (s *Scheduler) Events() *EventQueue { return s.events }

// Register adds a peripheral to the tick fan-out, preserving
// registration order. Interrupt sources are discovered live at each
// sweep rather than snapshotted here, so sources a peripheral adds
// after registration are still seen.
func (s *Scheduler) Register(p hw.Peripheral) {
	s.peripherals = append(s.peripherals, p)
	if prov, ok := p.(IRQSourceProvider); ok {
		s.providers = append(s.providers, prov)
	}
}

// SetXtal changes the effective oscillator frequency, as the clock tree
// does on a committed clock switch.
func (s *Scheduler) SetXtal(hz uint64) { s.XtalHz = hz }

// VirtualTicks returns the accumulated cycle count since the scheduler
// was created or last reset.
func (s *Scheduler) VirtualTicks() uint64 { return s.virtualTicks }

// RTime returns the monotonically increasing virtual elapsed time in
// seconds: accumulated_cycles / (xtal / clock_per_cycle).
func (s *Scheduler) RTime() float64 {
	if s.XtalHz == 0 {
		return 0
	}
	rate := float64(s.XtalHz) / float64(s.ClockPerCycle)
	return float64(s.virtualTicks) / rate
}

// Credit advances every peripheral and the event queue by cycles, then
// sweeps for a pending interrupt. cpuState and inISR gate the named
// tickers' optional filters. The first pending interrupt source found,
// in registration order, is reported so the caller (the CPU model) can
// redirect its program counter to the vector.
func (s *Scheduler) Credit(cycles uint64, cpuState string, inISR bool) (vector int, accepted bool) {
	for _, p := range s.peripherals {
		p.Tick(cycles)
	}
	s.events.Advance(int64(cycles))
	s.virtualTicks += cycles
	s.advanceTickers(cycles, cpuState, inISR)
	return s.sweepInterrupts()
}

func (s *Scheduler) sweepInterrupts() (int, bool) {
	for _, prov := range s.providers {
		for _, src := range prov.IRQSources() {
			if src.Pending() {
				return src.Vector, true
			}
		}
	}
	return 0, false
}

// Reset zeros virtual time and tears down the pending event queue,
// mirroring "reset... zeros the tick scheduler's virtual time
// (optionally)". Named tickers are left untouched: they are a
// debugger-owned facility, not simulation state.
func (s *Scheduler) Reset() {
	s.virtualTicks = 0
	s.events = NewEventQueue()
}

/*
 * ucsim - MCU drive loop: single goroutine, channel-gated start/stop/reset.
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

package mcu

import (
	"log/slog"
	"sync"
	"time"
)

// Driver is the seam a real ISA decode loop plugs into. Step executes
// one instruction, crediting whatever cycles it consumed, and reports
// whether the CPU is still runnable (false after a halt instruction).
// State and InISR feed the scheduler's named-ticker filters.
type Driver interface {
	Step() (cycles uint64, runnable bool)
	State() string
	InISR() bool
	TakeVector(vector int)
}

// CmdKind identifies one control message sent to a running MCU,
// mirroring emu/core.core's master.Packet dispatch (Start/Stop/IPL)
// adapted to this module's domain.
type CmdKind int

const (
	CmdStart CmdKind = iota
	CmdStop
	CmdReset
)

// Command is one message posted to a running MCU's command channel.
type Command struct {
	Kind CmdKind
}

// Run drives d on the calling goroutine's caller behalf: it starts a
// background goroutine, grounded in emu/core.core.Start's select-loop
// shape, that credits one Driver.Step per iteration while running and
// drains cmds between instructions so the debugger console (a second
// goroutine) can start/stop/reset without ever blocking mid-instruction
// (spec §5: "nothing suspends mid-instruction"). Call the returned
// stop function to shut the goroutine down; it blocks until the
// goroutine has exited or one second has elapsed.
func (m *MCU) Run(d Driver, cmds <-chan Command, log *slog.Logger) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		running := false
		for {
			select {
			case <-done:
				return
			case cmd := <-cmds:
				switch cmd.Kind {
				case CmdStart:
					running = true
				case CmdStop:
					running = false
				case CmdReset:
					running = false
					m.Reset()
				}
				continue
			default:
			}

			if !running {
				time.Sleep(time.Millisecond)
				continue
			}

			cycles, runnable := d.Step()
			if vector, ok := m.Scheduler.Credit(cycles, d.State(), d.InISR()); ok {
				d.TakeVector(vector)
			}
			for _, r := range m.recorders {
				r.SetTime(m.Scheduler.RTime())
			}
			if m.TakeStopRequest() {
				running = false
			}
			if !runnable {
				running = false
			}
		}
	}()

	return func() {
		close(done)
		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(time.Second):
			if log != nil {
				log.Warn("timed out waiting for MCU goroutine to finish")
			}
		}
	}
}

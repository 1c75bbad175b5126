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

package clocktree

import (
	"testing"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/hw"
)

type fakeSched struct{ hz uint64 }

func (f *fakeSched) SetXtal(hz uint64) { f.hz = hz }

func newTree() (*ClockTree, *fakeSched) {
	sched := &fakeSched{}
	c := New("clock", 0, 0x5000, SourceFreqs{16_000_000, 128_000, 8_000_000, 32_768}, sched)
	c.SetPrescalerTable([8]uint64{1, 2, 4, 8, 16, 32, 64, 128})
	c.Reset()
	return c, sched
}

func TestResetDefaultsToHSI(t *testing.T) {
	c, sched := newTree()
	if c.ActiveSource() != HSI {
		t.Errorf("active source = %v, want HSI", c.ActiveSource())
	}
	if sched.hz != 16_000_000 {
		t.Errorf("scheduler xtal = %d, want 16000000", sched.hz)
	}
}

func TestSwitchToReadySource(t *testing.T) {
	c, sched := newTree()
	c.SetOscillatorReady(HSE)
	c.WriteReg(offSWR, uint32(HSE), cell.Software)
	c.WriteReg(offSWCR, c.ReadReg(offSWCR)|swcrSWEN, cell.Software) // read-modify-write keeps SWBSY set
	if c.ActiveSource() != HSE {
		t.Fatalf("active source = %v, want HSE after switching to a ready oscillator", c.ActiveSource())
	}
	if sched.hz != 8_000_000 {
		t.Errorf("scheduler xtal = %d, want 8000000 after switch", sched.hz)
	}
}

func TestSwitchToNotReadySourceStaysPending(t *testing.T) {
	c, _ := newTree()
	c.WriteReg(offSWR, uint32(HSE), cell.Software)
	c.WriteReg(offSWCR, c.ReadReg(offSWCR)|swcrSWEN, cell.Software) // read-modify-write keeps SWBSY set
	if c.ActiveSource() != HSI {
		t.Errorf("active source = %v, want HSI: switch to a not-ready oscillator must not commit", c.ActiveSource())
	}
	if c.ReadReg(offSWCR)&swcrSWBSY == 0 {
		t.Error("SWBSY should remain set while the switch is pending")
	}
}

func TestCKDIVRChangesEffectiveFreq(t *testing.T) {
	c, sched := newTree()
	c.WriteReg(offCKDIVR, 3, cell.Software) // divisor 8
	if want := uint64(16_000_000 / 8); sched.hz != want {
		t.Errorf("scheduler xtal = %d, want %d", sched.hz, want)
	}
}

type recordingPartner struct{ events []string }

func (p *recordingPartner) Happen(_ string, event string, _ []uint32) {
	p.events = append(p.events, event)
}

func TestGatedPartnerNotifiedOnPCKENRChange(t *testing.T) {
	c, _ := newTree()
	p := &recordingPartner{}
	c.AddGatedPartner(hw.Partner(p), 0)
	c.broadcastAllGates()
	if len(p.events) != 1 || p.events[0] != "clock_off" {
		t.Fatalf("initial broadcast = %v, want one clock_off", p.events)
	}
	c.WriteReg(offPCKENR1, 1, cell.Software)
	if len(p.events) != 2 || p.events[1] != "clock_on" {
		t.Errorf("events after gating bit 0 = %v, want clock_on appended", p.events)
	}
	c.WriteReg(offPCKENR1, 1, cell.Software) // no change, no extra notify
	if len(p.events) != 2 {
		t.Errorf("events after a no-op write = %v, want no extra notification", p.events)
	}
}

func TestICKRCannotDisableActiveSource(t *testing.T) {
	c, _ := newTree()
	c.WriteReg(offICKR, 0, cell.Software) // attempt to clear HSIEN while HSI is active
	if c.ReadReg(offICKR)&ickrHSIEN == 0 {
		t.Error("HSIEN must stay set while HSI is the active source")
	}
}

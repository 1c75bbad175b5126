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

package timer

import (
	"testing"

	"github.com/drotos/ucsim/emu/cell"
)

func TestResetLeavesARRAtMax(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Reset()
	if tm.ARR() != 0xFFFF {
		t.Errorf("ARR after reset = %#x, want 0xFFFF", tm.ARR())
	}
	if tm.Enabled() {
		t.Error("CEN should be clear after reset")
	}
}

func TestUpCountingRolloverRaisesUpdateEvent(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(3)
	tm.SetIER(1)
	tm.SetCR1(cr1CEN)

	tm.Tick(4) // 0->1->2->3->rollover to 0, UIF set
	if tm.Counter() != 0 {
		t.Errorf("counter = %d, want 0 after rollover", tm.Counter())
	}
	if !tm.UIF() {
		t.Error("UIF should be set after rollover")
	}
	if !tm.IRQSources()[0].Pending() {
		t.Error("update IRQ should be pending with IER set")
	}
}

func TestPrescalerLinearDividesTicks(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(0xFFFF)
	tm.SetPrescaler(3) // divide by 4
	tm.SetCR1(cr1CEN)

	tm.Tick(3)
	if tm.Counter() != 0 {
		t.Errorf("counter = %d, want 0 before the 4th tick lands", tm.Counter())
	}
	tm.Tick(1)
	if tm.Counter() != 1 {
		t.Errorf("counter = %d, want 1 once the prescaler reaches its divisor", tm.Counter())
	}
}

func TestPrescalerPow2FieldIsAShift(t *testing.T) {
	tm := New8("timer", 0, 0x5040, 3)
	tm.Init()
	tm.Reset()
	tm.SetARR(0xFF)
	tm.SetPrescaler(2) // divide by 1<<2 = 4
	tm.SetCR1(cr1CEN)

	tm.Tick(3)
	if tm.Counter() != 0 {
		t.Errorf("counter = %d, want 0 before the 4th tick", tm.Counter())
	}
	tm.Tick(1)
	if tm.Counter() != 1 {
		t.Errorf("counter = %d, want 1 after 4 ticks with a pow2 field of 2", tm.Counter())
	}
}

func TestCenteredModeReversesDirectionAtEdges(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(2)
	tm.SetCR1(cr1CEN | cr1CMS)

	tm.Tick(2) // 0 -> 1 -> 2, at the top of the sweep
	if tm.Counter() != 2 {
		t.Fatalf("counter = %d, want 2 at the top of the up-down sweep", tm.Counter())
	}
	tm.Tick(1) // entry cnt==arr: turns around and fires the update event, cnt unchanged this tick
	if !tm.UIF() {
		t.Fatal("expected UIF set at the turnaround")
	}
	if tm.Counter() != 2 {
		t.Fatalf("counter = %d, want 2 on the turnaround tick itself", tm.Counter())
	}
	tm.Tick(1) // first tick counting back down
	if tm.Counter() != 1 {
		t.Errorf("counter = %d, want 1 counting back down", tm.Counter())
	}
}

func TestUIFClearedByWriteZero(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(0)
	tm.SetCR1(cr1CEN)
	tm.Tick(1)
	if !tm.UIF() {
		t.Fatal("expected UIF set after rollover with ARR=0")
	}
	tm.WriteReg(offSR1, 0, cell.Software)
	if tm.UIF() {
		t.Error("UIF should clear after a software write of 0")
	}
}

func TestOnePulseModeClearsCEN(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(0)
	tm.SetCR1(cr1CEN | cr1OPM)
	tm.Tick(1)
	if tm.Enabled() {
		t.Error("CEN should clear after one update event in one-pulse mode")
	}
}

func TestForceUpdateSuppressesIRQWhenURSSet(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetIER(1)
	tm.SetCR1(cr1URS)
	tm.ForceUpdate()
	if tm.IRQSources()[0].Pending() {
		t.Error("a forced update with URS set must not raise the interrupt")
	}
	if !tm.UIF() {
		t.Error("UIF should still be set by a forced update")
	}
}

func TestExtendedRegisterLayoutLinearPrescaler16Bit(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	l := tm.extendedOffsets()
	if !l.hasPscLo || !l.hasArrHi {
		t.Fatalf("layout = %+v, want both pscLo and arrHi present for a 16-bit linear-prescaler timer", l)
	}
	if l.pscHi != offCNTL+1 || l.pscLo != offCNTL+2 || l.arrHi != offCNTL+3 || l.arrLo != offCNTL+4 {
		t.Errorf("layout offsets = %+v, unexpected placement", l)
	}
}

func TestCompareMatchSetsChannelFlagAndRaisesIRQ(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.AddCompareChannels(2, 14)
	tm.Reset()
	tm.SetARR(0xFFFF)
	tm.SetCompare(0, 3)
	tm.SetIER(1 << 1) // CC1IE only
	tm.SetCR1(cr1CEN)

	tm.Tick(2)
	if tm.CompareFlag(0) {
		t.Fatal("CC1IF should not be set before the counter reaches the compare value")
	}
	tm.Tick(1) // counter reaches 3
	if !tm.CompareFlag(0) {
		t.Fatal("CC1IF should be set when the counter equals CCR1")
	}
	srcs := tm.IRQSources()
	if len(srcs) != 2 || !srcs[1].Pending() {
		t.Error("the capture/compare IRQ should be pending with CC1IE set")
	}
	if tm.CompareFlag(1) {
		t.Error("channel 2 never matched and its flag must stay clear")
	}
}

func TestCompareRegisterHighLowByteWrites(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.AddCompareChannels(1, 14)
	tm.Reset()
	l := tm.extendedOffsets()

	tm.WriteReg(l.ccBase, 0x12, cell.Software)   // high byte buffered
	tm.WriteReg(l.ccBase+1, 0x34, cell.Software) // low byte commits the pair
	if got := tm.ReadReg(l.ccBase); got != 0x12 {
		t.Errorf("CCR1H = %#x, want 0x12", got)
	}
	if got := tm.ReadReg(l.ccBase + 1); got != 0x34 {
		t.Errorf("CCR1L = %#x, want 0x34", got)
	}
	if tm.ccr[0] != 0x1234 {
		t.Errorf("committed compare value = %#x, want 0x1234", tm.ccr[0])
	}
}

func TestBasicTimerIgnoresCompareChannels(t *testing.T) {
	tm := New8("timer", 0, 0x5040, 3)
	tm.Init()
	tm.AddCompareChannels(2, 14)
	if len(tm.IRQSources()) != 1 {
		t.Error("a basic timer must not grow a capture/compare IRQ source")
	}
}

func TestClockGateFreezesCounting(t *testing.T) {
	tm := New16("timer", 0, 0x5010, General, PrescalerLinear, 8)
	tm.Init()
	tm.Reset()
	tm.SetARR(0xFFFF)
	tm.SetCR1(cr1CEN)

	tm.Happen("clock", "clock_off", nil)
	tm.Tick(5)
	if tm.Counter() != 0 {
		t.Fatalf("counter = %d, want 0 while the peripheral clock is gated off", tm.Counter())
	}
	tm.Happen("clock", "clock_on", nil)
	tm.Tick(5)
	if tm.Counter() != 5 {
		t.Errorf("counter = %d, want 5 once the clock is back", tm.Counter())
	}
}

func TestExtendedRegisterLayoutPow2Prescaler8Bit(t *testing.T) {
	tm := New8("timer", 0, 0x5040, 3)
	l := tm.extendedOffsets()
	if l.hasPscLo || l.hasArrHi {
		t.Fatalf("layout = %+v, want a single-byte prescaler and no ARR-high byte for an 8-bit pow2 timer", l)
	}
	if l.pscHi != offCNTL+1 || l.arrLo != offCNTL+2 {
		t.Errorf("layout offsets = %+v, unexpected placement", l)
	}
}

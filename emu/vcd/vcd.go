/*
 * ucsim - VCD recorder: value-change-dump output and input playback.
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

// Package vcd implements the value-change-dump recorder: output mode
// watches a set of (cell, bit-range) watchpoints and emits a standard
// VCD stream; input mode parses a VCD stream and drives writes back
// into the corresponding cells at the recorded times. Grounded on the
// operator-chain pattern in emu/cell (a watchpoint is a plain
// cell.Operator, not a hw.Peripheral, since it has no registers or
// tick-driven state of its own).
package vcd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/drotos/ucsim/emu/cell"
)

var timescaleSeconds = map[string]float64{
	"fs": 1e-15,
	"ps": 1e-12,
	"ns": 1e-9,
	"us": 1e-6,
	"ms": 1e-3,
}

var timescaleOrder = []string{"fs", "ps", "ns", "us", "ms"}

// Watchpoint is one recorded (cell, bit-range) tuple. BitHigh/BitLow
// are both -1 for a whole-word watchpoint.
type Watchpoint struct {
	Name            string
	Cell            *cell.Cell
	BitHigh, BitLow int

	id          byte
	lastEmitted uint32
	hasEmitted  bool
}

func (w *Watchpoint) width() int {
	if w.BitHigh < 0 {
		m := w.Cell.Mask()
		n := 0
		for m != 0 {
			n++
			m >>= 1
		}
		if n == 0 {
			n = 1
		}
		return n
	}
	return w.BitHigh - w.BitLow + 1
}

func (w *Watchpoint) extract(raw uint32) uint32 {
	if w.BitHigh < 0 {
		return raw & w.Cell.Mask()
	}
	width := w.width()
	mask := uint32(1)<<uint(width) - 1
	return (raw >> uint(w.BitLow)) & mask
}

func toBinary(v uint32, width int) string {
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		if (v>>uint(width-1-i))&1 == 1 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

// Recorder is the output-mode VCD writer. Writes to a watched cell are
// buffered into the current time bucket and only actually emitted (one
// `#time` marker, one change line per changed watchpoint) once time
// advances past that bucket — this is what gives VCD idempotence
// (spec testable property 7): several writes landing on the same
// scaled timestamp collapse to at most one change line holding the
// bucket's final value.
type Recorder struct {
	out    io.Writer
	module string

	timescaleUnits float64 // seconds per VCD time unit.
	timescaleLabel string

	watch []*Watchpoint

	started      bool
	currentTicks int64
	markerDone   bool
	dirty        map[*Watchpoint]uint32
	nextID       byte

	onEvent func(w *Watchpoint)
}

// NewRecorder creates an output-mode recorder writing to out.
func NewRecorder(out io.Writer) *Recorder {
	r := &Recorder{out: out, nextID: 33, dirty: make(map[*Watchpoint]uint32)}
	r.SetTimescale(1, "us")
	return r
}

// SetModule names the $scope module wrapping every $var.
func (r *Recorder) SetModule(name string) { r.module = name }

// SetTimescale fixes an explicit timescale (spec §6 `timescale <n>
// <fs|ps|ns|us|ms>`).
func (r *Recorder) SetTimescale(n int, unit string) {
	secs, ok := timescaleSeconds[unit]
	if !ok {
		secs = timescaleSeconds["us"]
		unit = "us"
	}
	r.timescaleUnits = secs * float64(n)
	r.timescaleLabel = fmt.Sprintf("%d %s", n, unit)
}

// AutoTimescale derives a timescale from xtalHz so one oscillator
// period is a whole number of VCD time units (spec §4.11, `timescale
// auto`).
func (r *Recorder) AutoTimescale(xtalHz uint64) {
	if xtalHz == 0 {
		r.SetTimescale(1, "us")
		return
	}
	period := 1.0 / float64(xtalHz)
	for _, unit := range timescaleOrder {
		if period/timescaleSeconds[unit] >= 1 {
			r.SetTimescale(1, unit)
			return
		}
	}
	r.SetTimescale(1, "ms")
}

// AddWatch registers a new watchpoint on c, appending a passthrough
// observer operator that never rewrites the value. Pass -1,-1 for
// bitHigh/bitLow to watch the whole word.
func (r *Recorder) AddWatch(name string, c *cell.Cell, bitHigh, bitLow int) *Watchpoint {
	w := &Watchpoint{Name: name, Cell: c, BitHigh: bitHigh, BitLow: bitLow, id: r.nextID}
	r.nextID++
	r.watch = append(r.watch, w)
	c.Append(&watchOp{r: r, w: w})
	return w
}

// DelWatch removes the named watchpoint and its observer operator.
// Reports whether a watchpoint by that name existed.
func (r *Recorder) DelWatch(name string) bool {
	for i, w := range r.watch {
		if w.Name != name {
			continue
		}
		w.Cell.Remove(w)
		delete(r.dirty, w)
		r.watch = append(r.watch[:i], r.watch[i+1:]...)
		return true
	}
	return false
}

// OnEvent installs a callback invoked once per watchpoint change
// emission, for the debugger's break-on-event toggle. Pass nil to
// disable.
func (r *Recorder) OnEvent(fn func(w *Watchpoint)) { r.onEvent = fn }

// Restart resumes recording after a Pause without re-emitting the
// header, continuing in the stream where the paused session left off.
func (r *Recorder) Restart() { r.started = true }

// Start emits the VCD header, an initial #0/$dumpvars block with every
// watchpoint's current value, and begins recording.
func (r *Recorder) Start() {
	r.started = true
	r.currentTicks = 0
	r.markerDone = true // the #0 marker below covers this bucket already.
	r.dirty = make(map[*Watchpoint]uint32)

	fmt.Fprint(r.out, "$date\n   (simulated)\n$end\n")
	fmt.Fprint(r.out, "$version\n   ucsim\n$end\n")
	fmt.Fprintf(r.out, "$timescale %s $end\n", r.timescaleLabel)
	mod := r.module
	if mod == "" {
		mod = "ucsim"
	}
	fmt.Fprintf(r.out, "$scope module %s $end\n", mod)
	for _, w := range r.watch {
		fmt.Fprintf(r.out, "$var wire %d %c %s $end\n", w.width(), w.id, w.Name)
	}
	fmt.Fprint(r.out, "$upscope $end\n$enddefinitions $end\n")

	fmt.Fprint(r.out, "#0\n$dumpvars\n")
	for _, w := range r.watch {
		v := w.extract(w.Cell.ReadRaw())
		r.writeChange(w, v)
		w.lastEmitted = v
		w.hasEmitted = true
	}
	fmt.Fprint(r.out, "$end\n")
}

// Pause stops emitting change lines without flushing the current
// bucket, so a later Start-equivalent resume can still coalesce writes
// landing in the same still-open bucket. Re-start callers should call
// Start again for a fresh session; Pause exists for the debugger's
// `pause` subcommand, which simply stops observing.
func (r *Recorder) Pause() { r.started = false }

// Stop flushes any pending bucket and ends recording.
func (r *Recorder) Stop() {
	r.flushCurrent()
	r.started = false
}

// SetTime advances the recorder's notion of current virtual time,
// flushing the previous bucket's buffered changes if the scaled
// timestamp actually moved. The MCU wiring layer calls this once per
// instruction boundary with the scheduler's rtime.
func (r *Recorder) SetTime(seconds float64) {
	if !r.started {
		return
	}
	ticks := r.scaledTicks(seconds)
	if ticks == r.currentTicks {
		return
	}
	r.flushCurrent()
	r.currentTicks = ticks
	r.markerDone = false
}

func (r *Recorder) scaledTicks(seconds float64) int64 {
	if r.timescaleUnits == 0 {
		return 0
	}
	return int64(seconds / r.timescaleUnits)
}

// flushCurrent emits the deferred marker (if any watchpoint actually
// changed) and each changed watchpoint's final value for the bucket,
// then clears the pending set.
func (r *Recorder) flushCurrent() {
	if len(r.dirty) == 0 {
		return
	}
	for _, w := range r.watch {
		v, ok := r.dirty[w]
		if !ok {
			continue
		}
		if w.hasEmitted && v == w.lastEmitted {
			continue
		}
		if !r.markerDone {
			fmt.Fprintf(r.out, "#%d\n", r.currentTicks)
			r.markerDone = true
		}
		r.writeChange(w, v)
		w.lastEmitted = v
		w.hasEmitted = true
		if r.onEvent != nil {
			r.onEvent(w)
		}
	}
	r.dirty = make(map[*Watchpoint]uint32)
}

func (r *Recorder) writeChange(w *Watchpoint, v uint32) {
	width := w.width()
	if width == 1 {
		fmt.Fprintf(r.out, "%d%c\n", v&1, w.id)
		return
	}
	fmt.Fprintf(r.out, "b%s %c\n", toBinary(v, width), w.id)
}

// observe buffers w's new value for the current bucket; the actual
// comparison against the last emitted value happens at flush time, so
// that several same-bucket writes collapse to the bucket's final
// value (spec scenario 6).
func (r *Recorder) observe(w *Watchpoint, raw uint32) {
	if !r.started {
		return
	}
	r.dirty[w] = w.extract(raw)
}

type watchOp struct {
	r *Recorder
	w *Watchpoint
}

func (o *watchOp) Read(_ *cell.Cell, next func() uint32) uint32 { return next() }

func (o *watchOp) Write(_ *cell.Cell, val uint32, _ cell.Origin, next func(uint32) uint32) uint32 {
	result := next(val)
	o.r.observe(o.w, result)
	return result
}

func (o *watchOp) Owner() any { return o.w }

// Target is one input-mode playback destination: a declared VCD
// signal id bound to a cell and bit range.
type Target struct {
	Name            string
	Cell            *cell.Cell
	BitHigh, BitLow int
}

func (t *Target) apply(value uint32) uint32 {
	if t.BitHigh < 0 {
		return value & t.Cell.Mask()
	}
	raw := t.Cell.ReadRaw()
	width := uint(t.BitHigh - t.BitLow + 1)
	mask := (uint32(1)<<width - 1) << uint(t.BitLow)
	return (raw &^ mask) | ((value << uint(t.BitLow)) & mask)
}

// Player is the input-mode VCD reader: it parses a VCD text stream,
// resolves each declared signal id against pre-registered targets, and
// drives cell writes at the recorded times.
type Player struct {
	targets        map[byte]*Target
	timescaleUnits float64
	onTimeAdvance  func(seconds float64)
	resolve        func(name string) *Target
}

// NewPlayer creates an input-mode reader.
func NewPlayer() *Player {
	return &Player{targets: make(map[byte]*Target), timescaleUnits: timescaleSeconds["us"]}
}

// Declare binds a VCD signal id (the single character following
// `$var ... <id> <name> $end`) to a playback target. Callers parse the
// `$var` declarations themselves (they alone know which cell a named
// signal should drive) and call Declare once per signal before Load.
func (p *Player) Declare(id byte, t *Target) { p.targets[id] = t }

// Resolver installs a by-name lookup Load uses to bind the stream's own
// `$var` declarations to playback targets, so a caller need not parse
// the declarations itself. A declared signal the resolver returns nil
// for is ignored. Explicit Declare bindings take precedence.
func (p *Player) Resolver(fn func(name string) *Target) { p.resolve = fn }

// OnTimeAdvance installs a callback invoked once per distinct `#time`
// marker encountered, before that time's writes are applied. A caller
// can use it to install a dynamic fetch breakpoint at the CPU's PC so
// the CPU yields before executing its next instruction, keeping
// playback visible at the right virtual time (spec §4.11).
func (p *Player) OnTimeAdvance(fn func(seconds float64)) { p.onTimeAdvance = fn }

// Load parses r as a VCD stream, applying each recorded write via
// apply (typically target.Cell.Write(target.apply(value),
// cell.Hardware)). $timescale is parsed if present; otherwise the
// timescale most recently set with SetTimescale (default 1us) is
// used.
func (p *Player) Load(r io.Reader, apply func(t *Target, value uint32)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "$timescale"):
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				n, err := strconv.Atoi(fields[1])
				if err == nil {
					p.SetTimescale(n, fields[2])
				}
			}
		case strings.HasPrefix(line, "$var"):
			// $var wire <width> <id> <name> $end
			fields := strings.Fields(line)
			if p.resolve == nil || len(fields) < 5 || len(fields[3]) != 1 {
				continue
			}
			id := fields[3][0]
			if _, bound := p.targets[id]; bound {
				continue
			}
			if t := p.resolve(fields[4]); t != nil {
				p.targets[id] = t
			}
		case strings.HasPrefix(line, "$"):
			continue // $date, $version, $scope, $enddefinitions, $dumpvars, $end, $upscope carry no playback state.
		case strings.HasPrefix(line, "#"):
			ticks, err := strconv.ParseInt(line[1:], 10, 64)
			if err != nil {
				continue
			}
			if p.onTimeAdvance != nil {
				p.onTimeAdvance(float64(ticks) * p.timescaleUnits)
			}
		case strings.HasPrefix(line, "b"):
			fields := strings.Fields(line)
			if len(fields) != 2 || len(fields[1]) != 1 {
				continue
			}
			val, err := strconv.ParseUint(fields[0][1:], 2, 64)
			if err != nil {
				continue
			}
			if t, ok := p.targets[fields[1][0]]; ok {
				apply(t, uint32(val))
			}
		default:
			if len(line) < 2 {
				continue
			}
			bit := line[0]
			id := line[1]
			if bit != '0' && bit != '1' {
				continue
			}
			if t, ok := p.targets[id]; ok {
				v := uint32(0)
				if bit == '1' {
					v = 1
				}
				apply(t, v)
			}
		}
	}
	return scanner.Err()
}

// SetTimescale mirrors Recorder.SetTimescale for input mode, used when
// a stream has no explicit $timescale line.
func (p *Player) SetTimescale(n int, unit string) {
	secs, ok := timescaleSeconds[unit]
	if !ok {
		secs = timescaleSeconds["us"]
	}
	p.timescaleUnits = secs * float64(n)
}

// Apply is the typical apply callback passed to Load: it computes the
// merged value for a sub-word target and writes it through with
// cell.Hardware origin, since playback models an external driver, not
// CPU-visible software activity.
func Apply(t *Target, value uint32) {
	t.Cell.Write(t.apply(value), cell.Hardware)
}

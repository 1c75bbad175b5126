/*
 * ucsim - Command parser.
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

// Package parser implements the debugger console's command line:
// start/stop/reset/quit, dump, break/watch/delete, timer, vcd, and
// set/show/unset against registered hardware targets. Dispatch keeps
// the source's prefix-matched command table and position-based line
// scanner; everything past that (device numbers, channel paths,
// register dumps keyed to a specific CPU architecture) has no
// equivalent here and is replaced with operations against *mcu.MCU
// directly.
package parser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/drotos/ucsim/command/command"
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/mcu"
	"github.com/drotos/ucsim/emu/scheduler"
	"github.com/drotos/ucsim/emu/vcd"
	"github.com/drotos/ucsim/util/hex"
)

type cmd struct {
	name    string // Command name.
	min     int    // Minimum match size.
	process func(*cmdLine, *mcu.MCU, chan<- mcu.Command) (bool, error)
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

var cmdList = []cmd{
	{name: "start", min: 3, process: doStart},
	{name: "continue", min: 1, process: doStart},
	{name: "stop", min: 3, process: doStop},
	{name: "reset", min: 3, process: doReset},
	{name: "quit", min: 1, process: doQuit},
	{name: "dump", min: 2, process: doDump},
	{name: "break", min: 3, process: doBreak},
	{name: "watch", min: 3, process: doWatch},
	{name: "delete", min: 3, process: doDelete},
	{name: "timer", min: 3, process: doTimer},
	{name: "vcd", min: 3, process: doVCD},
	{name: "set", min: 3, process: doSet},
	{name: "unset", min: 4, process: doUnset},
	{name: "show", min: 2, process: doShow},
}

// ProcessCommand parses and runs one console command line against m,
// posting start/stop/reset requests to cmds. It returns (true, nil)
// when the line was "quit".
func ProcessCommand(commandLine string, m *mcu.MCU, cmds chan<- mcu.Command) (bool, error) {
	line := cmdLine{line: commandLine}
	word := line.getWord(false)
	if word == "" {
		return false, nil
	}

	match := matchList(word)
	if len(match) == 0 {
		return false, errors.New("command not found: " + word)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + word)
	}

	return match[0].process(&line, m, cmds)
}

// CompleteCmd completes a partial command name for line editing.
// Sub-command completion (timer/vcd ids, hardware names) is out of
// scope for this console; only the leading verb completes.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	word := line.getWord(false)

	if !line.isEOL() && line.pos < len(line.line) && line.line[line.pos] == ' ' {
		return nil
	}

	matches := []string{}
	for _, c := range matchList(word) {
		matches = append(matches, c.name)
	}
	return matches
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, word string) bool {
	if len(word) > len(match.name) {
		return false
	}
	for i := range word {
		if match.name[i] != word[i] {
			return false
		}
	}
	return len(word) >= match.min
}

// Check if command matches one of the commands.
func matchList(word string) []cmd {
	if word == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, word) {
			match = append(match, m)
		}
	}
	return match
}

// --- line scanner, grounded on the source's cmdLine primitives ---

// Skip forward over line until a none whitespace character is found.
func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line.
func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// Return next letter or digit in line. 0 if EOL or space.
func (line *cmdLine) getNext() byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	return line.line[line.pos]
}

// Parse option name, stopping at '=' when equal is true.
func (line *cmdLine) getWord(equal bool) string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}

	var b strings.Builder
	by := line.line[line.pos]
	for {
		if unicode.IsSpace(rune(by)) || (equal && by == '=') {
			break
		}
		b.WriteByte(by)
		by = line.getNext()
		if line.isEOL() {
			break
		}
	}
	return strings.ToLower(b.String())
}

// Parse string that is "string" or just string.
func (line *cmdLine) parseQuoteString() (string, bool) {
	line.skipSpace()
	if line.isEOL() {
		return "", false
	}
	if line.line[line.pos] != '"' {
		return line.getWord(false), true
	}

	var b strings.Builder
	line.pos++
	for !line.isEOL() {
		by := line.line[line.pos]
		if by == '"' {
			line.pos++
			return b.String(), true
		}
		b.WriteByte(by)
		line.pos++
	}
	return b.String(), false
}

func (line *cmdLine) getUint(bitSize int) (uint64, error) {
	w := line.getWord(false)
	if w == "" {
		return 0, errors.New("expected a number")
	}
	w = strings.TrimPrefix(strings.TrimPrefix(w, "0x"), "0X")
	return strconv.ParseUint(w, 16, bitSize)
}

func (line *cmdLine) getFloat() (float64, error) {
	w := line.getWord(false)
	if w == "" {
		return 0, errors.New("expected a number")
	}
	return strconv.ParseFloat(w, 64)
}

// --- run control ---

func doStart(_ *cmdLine, _ *mcu.MCU, cmds chan<- mcu.Command) (bool, error) {
	cmds <- mcu.Command{Kind: mcu.CmdStart}
	return false, nil
}

func doStop(_ *cmdLine, _ *mcu.MCU, cmds chan<- mcu.Command) (bool, error) {
	cmds <- mcu.Command{Kind: mcu.CmdStop}
	return false, nil
}

func doReset(_ *cmdLine, _ *mcu.MCU, cmds chan<- mcu.Command) (bool, error) {
	cmds <- mcu.Command{Kind: mcu.CmdReset}
	return false, nil
}

func doQuit(_ *cmdLine, _ *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	return true, nil
}

// --- dump ---

func doDump(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	spaceName := line.getWord(false)
	smart := spaceName == "smart"
	if smart {
		spaceName = line.getWord(false)
	}
	sp, ok := m.Space(spaceName)
	if !ok {
		return false, fmt.Errorf("unknown address space %q", spaceName)
	}
	start, err := line.getUint(32)
	if err != nil {
		return false, fmt.Errorf("start address: %w", err)
	}
	stop := start
	if savedPos := line.pos; line.getWord(false) != "" {
		line.pos = savedPos
		v, err := line.getUint(32)
		if err != nil {
			return false, fmt.Errorf("end address: %w", err)
		}
		stop = v
	}
	bytesPerLine := 16
	if w := line.getWord(false); w != "" {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			bytesPerLine = n
		}
	}

	names := map[uint32]string{}
	for _, v := range m.VariablesByAddress() {
		names[v.Cell.Addr] = v.Name
	}

	var out strings.Builder
	for addr := uint32(start); addr <= uint32(stop); addr += uint32(bytesPerLine) {
		var row strings.Builder
		hex.FormatWord(&row, []uint32{addr})
		row.WriteString(": ")
		var ascii, bits strings.Builder
		for i := 0; i < bytesPerLine && addr+uint32(i) <= uint32(stop); i++ {
			v := sp.Get(addr+uint32(i), m.Cells)
			by := byte(v)
			hex.FormatByte(&row, by)
			row.WriteByte(' ')
			if by >= 0x20 && by < 0x7f {
				ascii.WriteByte(by)
			} else {
				ascii.WriteByte('.')
			}
			formatBits(&bits, by)
			bits.WriteByte(' ')
		}
		if smart {
			row.WriteString(" " + strings.TrimRight(bits.String(), " "))
		}
		if name, ok := names[addr]; ok {
			row.WriteString(" ; " + name)
		}
		row.WriteString(" |" + ascii.String() + "|\n")
		out.WriteString(row.String())
	}
	fmt.Print(out.String())
	return false, nil
}

func formatBits(b *strings.Builder, by byte) {
	for bit := 7; bit >= 0; bit-- {
		if by&(1<<uint(bit)) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
}

// --- breakpoints ---

// addrBreak is an unconditional read or write breakpoint on one cell:
// the console's own cell.Breakpoint implementation, since break/watch
// are debugger-only facilities with no peripheral-side equivalent to
// ground against.
type addrBreak struct {
	label string
}

func (b *addrBreak) DoHit(_ *cell.Cell) bool { return true }
func (b *addrBreak) Owner() any              { return b }

// consoleSink collects breakpoint hits for the next command prompt to
// report. Enqueue may fire from inside the MCU's drive goroutine, so
// it only appends; it must never block on console I/O.
type consoleSink struct {
	hits []string
}

func (s *consoleSink) Enqueue(bp cell.Breakpoint) {
	if ab, ok := bp.(*addrBreak); ok {
		s.hits = append(s.hits, ab.label)
	}
}

func (s *consoleSink) drain() []string {
	h := s.hits
	s.hits = nil
	return h
}

var sink = &consoleSink{}

// breaks tracks installed breakpoints by label so delete can remove
// the exact owner instance Cell.Remove compares against; constructing
// a fresh *addrBreak with the same label would not match by identity.
var breaks = map[string]*addrBreak{}

func reportHits() {
	for _, h := range sink.drain() {
		fmt.Println("break: " + h)
	}
}

func doBreak(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	return installBreak(line, m, true, true)
}

func doWatch(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	return installBreak(line, m, false, true)
}

func installBreak(line *cmdLine, m *mcu.MCU, onRead, onWrite bool) (bool, error) {
	reportHits()
	spaceName := line.getWord(false)
	sp, ok := m.Space(spaceName)
	if !ok {
		return false, fmt.Errorf("unknown address space %q", spaceName)
	}
	addr, err := line.getUint(32)
	if err != nil {
		return false, fmt.Errorf("address: %w", err)
	}
	cl := sp.GetCell(uint32(addr), m.Cells)
	label := fmt.Sprintf("%s:%#x", spaceName, addr)
	bp := &addrBreak{label: label}
	breaks[label] = bp
	if onRead {
		cl.Append(cell.NewReadBreak(bp, sink))
	}
	if onWrite {
		cl.Append(cell.NewWriteBreak(bp, sink))
	}
	return false, nil
}

func doDelete(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	reportHits()
	kind := line.getWord(false)
	if kind != "break" && kind != "watch" {
		return false, errors.New("usage: delete break|watch <space> <addr>")
	}
	spaceName := line.getWord(false)
	sp, ok := m.Space(spaceName)
	if !ok {
		return false, fmt.Errorf("unknown address space %q", spaceName)
	}
	addr, err := line.getUint(32)
	if err != nil {
		return false, fmt.Errorf("address: %w", err)
	}
	label := fmt.Sprintf("%s:%#x", spaceName, addr)
	bp, ok := breaks[label]
	if !ok {
		return false, fmt.Errorf("no breakpoint at %s", label)
	}
	cl := sp.GetCell(uint32(addr), m.Cells)
	cl.Remove(bp)
	delete(breaks, label)
	return false, nil
}

// --- timer ---

func doTimer(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	sub := line.getWord(false)
	switch sub {
	case "list", "":
		for _, t := range m.Scheduler.Tickers() {
			fmt.Printf("%s: ticks=%d running=%v freq=%g\n", t.Name, t.Ticks(), t.Running, t.Freq)
		}
		return false, nil
	case "add", "new":
		return addTicker(line, m)
	case "delete", "del":
		m.Scheduler.DeleteTicker(line.getWord(false))
		return false, nil
	case "get":
		name := line.getWord(false)
		t, ok := m.Scheduler.GetTicker(name)
		if !ok {
			return false, fmt.Errorf("unknown ticker %q", name)
		}
		fmt.Printf("%s: ticks=%d time=%gs\n", t.Name, t.Ticks(), t.Time())
		return false, nil
	case "start":
		m.Scheduler.StartTicker(line.getWord(false))
		return false, nil
	case "stop":
		m.Scheduler.StopTicker(line.getWord(false))
		return false, nil
	case "ticks":
		name := line.getWord(false)
		t, ok := m.Scheduler.GetTicker(name)
		if !ok {
			return false, fmt.Errorf("unknown ticker %q", name)
		}
		if w := line.getWord(false); w != "" {
			v, err := strconv.ParseInt(w, 10, 64)
			if err != nil {
				return false, err
			}
			t.SetTicks(v)
			return false, nil
		}
		fmt.Println(t.Ticks())
		return false, nil
	case "time":
		name := line.getWord(false)
		t, ok := m.Scheduler.GetTicker(name)
		if !ok {
			return false, fmt.Errorf("unknown ticker %q", name)
		}
		if v, err := line.getFloat(); err == nil {
			t.SetTime(v)
			return false, nil
		}
		fmt.Println(t.Time())
		return false, nil
	}
	return false, fmt.Errorf("unknown timer subcommand %q", sub)
}

// addTicker parses both accepted shapes of `timer add`:
//
//	historical: add <name> <step> [isr]
//	modern:     add <name> [halt|isr|inisr|main|<state>] [freq <N>]
//	            [step <N>] [up|down|inc|dec]
//
// The historical form's bare number is the counting frequency; its
// trailing `isr` flag restricts counting to interrupt service.
func addTicker(line *cmdLine, m *mcu.MCU) (bool, error) {
	name := line.getWord(false)
	if name == "" {
		return false, errors.New("usage: timer add <name> [options]")
	}
	dir := scheduler.Increment
	freq := float64(m.Scheduler.XtalHz)
	filter := scheduler.Filter{}
	for {
		w := line.getWord(false)
		if w == "" {
			break
		}
		switch w {
		case "up", "inc", "increment":
			dir = scheduler.Increment
		case "down", "dec", "decrement":
			dir = scheduler.Decrement
		case "isr", "inisr":
			filter.OnlyISR = true
		case "halt", "main":
			filter.OnlyState = w
		case "freq", "step":
			v, err := line.getFloat()
			if err != nil {
				return false, fmt.Errorf("%s: %w", w, err)
			}
			freq = v
		case "rtime":
			// Accepted for compatibility; counting against rtime is the
			// default behavior, there is nothing to switch.
		default:
			// Historical form: a bare number is the frequency; any other
			// bare word names a CPU state to filter on.
			if v, err := strconv.ParseFloat(w, 64); err == nil {
				freq = v
			} else {
				filter.OnlyState = w
			}
		}
	}
	t := m.Scheduler.AddTicker(name, dir, freq, filter)
	t.Running = true
	return false, nil
}

// --- vcd ---

var recorders = map[string]*vcd.Recorder{}

func doVCD(line *cmdLine, m *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	id := line.getWord(false)
	sub := line.getWord(false)

	// "output" replaces an existing recorder's stream the same way "new"
	// creates one: a Recorder is bound to its writer for life, so
	// redirecting output means building a fresh recorder on the new file.
	if sub == "new" || sub == "output" {
		name, _ := line.parseQuoteString()
		w, err := openVCDOutput(name)
		if err != nil {
			return false, err
		}
		r := vcd.NewRecorder(w)
		recorders[id] = r
		m.AttachRecorder(r)
		return false, nil
	}

	// Input playback needs no output recorder: it binds the stream's
	// declared signals straight to the MCU's variables.
	if sub == "input" {
		name, _ := line.parseQuoteString()
		return false, playVCDInput(name, m)
	}

	r, ok := recorders[id]
	if !ok {
		return false, fmt.Errorf("unknown vcd recorder %q (use \"vcd <id> new <file>\" first)", id)
	}

	switch sub {
	case "module":
		r.SetModule(line.getWord(false))
	case "timescale":
		w := line.getWord(false)
		if w == "auto" {
			r.AutoTimescale(m.Scheduler.XtalHz)
			return false, nil
		}
		n, err := strconv.Atoi(w)
		if err != nil {
			return false, err
		}
		r.SetTimescale(n, line.getWord(false))
	case "watch", "add":
		name := line.getWord(false)
		v, ok := m.Variable(name)
		if !ok {
			return false, fmt.Errorf("unknown variable %q", name)
		}
		r.AddWatch(name, v.Cell, v.BitHigh, v.BitLow)
	case "del", "delete":
		name := line.getWord(false)
		if !r.DelWatch(name) {
			return false, fmt.Errorf("no watchpoint named %q", name)
		}
	case "break":
		if vcdBreak[id] {
			r.OnEvent(nil)
			vcdBreak[id] = false
		} else {
			r.OnEvent(func(_ *vcd.Watchpoint) { m.RequestStop() })
			vcdBreak[id] = true
		}
	case "start":
		r.Start()
	case "pause":
		r.Pause()
	case "re-start", "restart":
		r.Restart()
	case "stop":
		r.Stop()
	default:
		return false, fmt.Errorf("unknown vcd subcommand %q", sub)
	}
	return false, nil
}

var vcdBreak = map[string]bool{}

// playVCDInput drives recorded writes from a VCD file back into the
// cells of variables matching the stream's declared signal names.
func playVCDInput(name string, m *mcu.MCU) error {
	if name == "" {
		return errors.New("vcd input requires a file name")
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	p := vcd.NewPlayer()
	p.Resolver(func(signal string) *vcd.Target {
		v, ok := m.Variable(signal)
		if !ok {
			return nil
		}
		return &vcd.Target{Name: signal, Cell: v.Cell, BitHigh: v.BitHigh, BitLow: v.BitLow}
	})
	return p.Load(f, vcd.Apply)
}

// --- set / show / unset against registered hardware ---

var hardware = map[string]command.Hardware{}

// RegisterHardware binds name (a timer, a UART, a recorder) to the
// "set"/"show" target the console reaches it through. Nothing in this
// module registers hardware through it; the config/models builders do
// not call it.
func RegisterHardware(name string, h command.Hardware) {
	hardware[name] = h
}

func (line *cmdLine) getOptions() ([]*command.CmdOption, error) {
	var opts []*command.CmdOption
	for {
		line.skipSpace()
		if line.isEOL() {
			return opts, nil
		}
		name := line.getWord(true)
		if name == "" {
			return opts, nil
		}
		opt := &command.CmdOption{Name: name}
		if !line.isEOL() && line.line[line.pos] == '=' {
			line.pos++
			val, _ := line.parseQuoteString()
			opt.EqualOpt = val
			if n, err := strconv.Atoi(val); err == nil {
				opt.Value = n
			}
		}
		opts = append(opts, opt)
	}
}

func doSet(line *cmdLine, _ *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	return setOrUnset(line, false)
}

func doUnset(line *cmdLine, _ *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	return setOrUnset(line, true)
}

func setOrUnset(line *cmdLine, unset bool) (bool, error) {
	name := line.getWord(false)
	h, ok := hardware[name]
	if !ok {
		return false, fmt.Errorf("unknown hardware %q", name)
	}
	opts, err := line.getOptions()
	if err != nil {
		return false, err
	}
	return false, h.Set(unset, opts)
}

func doShow(line *cmdLine, _ *mcu.MCU, _ chan<- mcu.Command) (bool, error) {
	name := line.getWord(false)
	if name == "" {
		for n := range hardware {
			fmt.Println(n)
		}
		return false, nil
	}
	h, ok := hardware[name]
	if !ok {
		return false, fmt.Errorf("unknown hardware %q", name)
	}
	opts, err := line.getOptions()
	if err != nil {
		return false, err
	}
	out, err := h.Show(opts)
	if err != nil {
		return false, err
	}
	fmt.Println(out)
	return false, nil
}

package scheduler

// Direction is whether a named ticker counts up or down.
type Direction int

const (
	Increment Direction = iota
	Decrement
)

// Filter gates which cycles a ticker counts: only while the CPU
// reports state OnlyState (a debugger-defined CPU state name, empty
// meaning unfiltered), and/or only while the CPU is servicing an
// interrupt.
type Filter struct {
	OnlyState string
	OnlyISR   bool
}

func (f Filter) passes(cpuState string, inISR bool) bool {
	if f.OnlyISR && !inISR {
		return false
	}
	if f.OnlyState != "" && f.OnlyState != cpuState {
		return false
	}
	return true
}

// Ticker is one user-configurable named counter: the debugger facility
// described in spec §4.10, independent of the simulated hardware.
type Ticker struct {
	Name    string
	Dir     Direction
	Freq    float64
	Filter  Filter
	Running bool
	ticks   int64
}

// Ticks returns the raw accumulated count.
func (t *Ticker) Ticks() int64 { return t.ticks }

// SetTicks overwrites the raw count directly (the debugger's `ticks
// <value>` subcommand).
func (t *Ticker) SetTicks(v int64) { t.ticks = v }

// Time converts the raw count to seconds at this ticker's frequency.
func (t *Ticker) Time() float64 {
	if t.Freq == 0 {
		return 0
	}
	return float64(t.ticks) / t.Freq
}

// SetTime sets the raw count from a seconds value at this ticker's
// frequency (the debugger's `time <seconds>` subcommand).
func (t *Ticker) SetTime(seconds float64) { t.ticks = int64(seconds * t.Freq) }

// AddTicker creates and registers a new named ticker. Adding a ticker
// under a name already in use replaces it, matching the debugger's
// `timer <name> add` behavior of redefining rather than stacking.
func (s *Scheduler) AddTicker(name string, dir Direction, freq float64, filter Filter) *Ticker {
	t := &Ticker{Name: name, Dir: dir, Freq: freq, Filter: filter}
	if _, exists := s.tickers[name]; !exists {
		s.tickerOrder = append(s.tickerOrder, name)
	}
	s.tickers[name] = t
	return t
}

// DeleteTicker removes a named ticker.
func (s *Scheduler) DeleteTicker(name string) {
	if _, ok := s.tickers[name]; !ok {
		return
	}
	delete(s.tickers, name)
	for i, n := range s.tickerOrder {
		if n == name {
			s.tickerOrder = append(s.tickerOrder[:i], s.tickerOrder[i+1:]...)
			break
		}
	}
}

// GetTicker looks up a named ticker.
func (s *Scheduler) GetTicker(name string) (*Ticker, bool) {
	t, ok := s.tickers[name]
	return t, ok
}

// Tickers returns every named ticker in the order it was first added.
func (s *Scheduler) Tickers() []*Ticker {
	out := make([]*Ticker, 0, len(s.tickerOrder))
	for _, n := range s.tickerOrder {
		out = append(out, s.tickers[n])
	}
	return out
}

// StartTicker and StopTicker toggle a named ticker's run flag.
func (s *Scheduler) StartTicker(name string) {
	if t, ok := s.tickers[name]; ok {
		t.Running = true
	}
}

func (s *Scheduler) StopTicker(name string) {
	if t, ok := s.tickers[name]; ok {
		t.Running = false
	}
}

// advanceTickers credits elapsed cycles to every running ticker whose
// filter passes for the current CPU state.
func (s *Scheduler) advanceTickers(cycles uint64, cpuState string, inISR bool) {
	for _, name := range s.tickerOrder {
		t := s.tickers[name]
		if !t.Running || !t.Filter.passes(cpuState, inISR) {
			continue
		}
		if t.Dir == Increment {
			t.ticks += int64(cycles)
		} else {
			t.ticks -= int64(cycles)
		}
	}
}

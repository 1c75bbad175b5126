/*
 * ucsim - Command interface
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

// Package command defines the option vocabulary shared between the
// debugger's command-line parser and the "set hardware" targets
// (timers, VCD recorders) it configures. There is no removable media
// in this domain, so unlike the teacher's device interface this one
// carries no Attach/Detach: every hardware instance model built
// through config/models already exists for the life of the MCU.
package command

// CmdOption is one parsed option from a "set"/"show" command line.
type CmdOption struct {
	Name     string // Name of option.
	EqualOpt string // Value of string after =.
	Value    int    // Numeric value.
}

// Option types.
const (
	OptionSwitch = 1 + iota
	OptionFile
	OptionNumber
	OptionName
	OptionList
)

// Option validity masks.
const (
	ValidSet = 1 << iota
	ValidShow
)

// Options describes one option a Hardware target accepts.
type Options struct {
	Name        string   // Name of option.
	OptionType  int      // Type of argument.
	OptionValid int      // Option valid for command type.
	OptionList  []string // List of valid options for this option.
}

// Hardware is a debugger "set"/"show" target: a named, addressed
// peripheral or facility (a timer instance, a VCD recorder) whose
// runtime configuration the console can inspect and change.
type Hardware interface {
	Options(opt string) []Options              // Return list of supported options.
	Set(unset bool, options []*CmdOption) error // Do set/unset command.
	Show(options []*CmdOption) (string, error)  // Do show command.
}

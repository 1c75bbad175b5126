/*
 * ucsim - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/drotos/ucsim/command/reader"
	"github.com/drotos/ucsim/config/models"
	"github.com/drotos/ucsim/emu/clocktree"
	"github.com/drotos/ucsim/emu/mcu"
	"github.com/drotos/ucsim/emu/probe"
	"github.com/drotos/ucsim/emu/timer"
	"github.com/drotos/ucsim/util/logger"
)

// Logger is the process-wide structured logger.
var Logger *slog.Logger

// Fixed memory map for the default instance this binary builds: a
// flat code space plus an SFR space holding one clock tree, one
// general-purpose timer, one UART and a GPIO port with its EXTI
// controller. A deployment that needs a different topology builds it
// the same way, through config/models' builder functions, in place of
// this fixed layout.
const (
	codeBase = 0x0000
	codeSize = 0x1000

	clockAddr = 0x5000
	timerAddr = 0x5010
	uartAddr  = 0x5020
	extiAddr  = 0x5030
	gpioAAddr = 0x5040
	sfrBase   = 0x5000
	sfrSize   = 0x1000

	xtalHz                = 16_000_000
	cyclesPerMachineCycle = 1
)

func main() {
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Debug logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	if *optDebug {
		programLevel.Set(slog.LevelDebug)
	}
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("ucsim started")

	m := mcu.New(Logger, xtalHz, cyclesPerMachineCycle)

	code := m.AddSpace("code", codeBase, codeSize)
	m.AddSpace("sfr", sfrBase, sfrSize)

	codeChip := mcu.NewChip("code", codeSize, 8)
	if err := code.MapChip(codeBase, codeBase+codeSize-1, codeChip, 0); err != nil {
		fail(err)
	}

	ct, err := models.ClockTree(m, "sfr", 0, clockAddr, clocktree.SourceFreqs{xtalHz, 128_000, 8_000_000, 32_768})
	if err != nil {
		fail(err)
	}
	tim, err := models.Timer16(m, "sfr", 0, timerAddr, timer.General, timer.PrescalerLinear, 8)
	if err != nil {
		fail(err)
	}
	tim.AddCompareChannels(2, 14)
	u, err := models.UART(m, "sfr", 0, uartAddr, nil, 9, 10)
	if err != nil {
		fail(err)
	}
	// Peripheral clock gates: PCKENR1 bit 0 gates the timer, bit 3 the
	// UART, matching the STM8 convention of per-instance enable bits.
	ct.AddGatedPartner(tim, 0)
	ct.AddGatedPartner(u, 3)
	exti, err := models.EXTI(m, "sfr", extiAddr)
	if err != nil {
		fail(err)
	}
	if _, err := models.GPIOPort(m, "sfr", gpioAAddr, exti); err != nil {
		fail(err)
	}

	m.Reset()

	cpu := probe.New(code, m.Cells, codeBase)

	cmds := make(chan mcu.Command)
	stop := m.Run(cpu, cmds, Logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		reader.ConsoleReader(m, cmds)
		close(done)
	}()

	select {
	case <-sigChan:
		fmt.Println("Got quit signal")
	case <-done:
	}

	Logger.Info("shutting down")
	stop()
}

func fail(err error) {
	Logger.Error(err.Error())
	os.Exit(1)
}

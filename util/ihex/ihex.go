/*
 * ucsim - Intel-HEX record writer.
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

// Package ihex writes Intel-HEX records (`:LLAAAATT<data>CC`), extending
// util/hex's byte-formatting idiom from "format a value for display" to
// "emit a checksummed record line". Only record types 00 (data) and 01
// (end-of-file) are produced; a dump spanning more than 64KiB needs an
// extended-linear-address record (type 04) this writer does not emit,
// since no peripheral space modeled here exceeds that range.
package ihex

import (
	"fmt"
	"io"
	"strings"

	"github.com/drotos/ucsim/util/hex"
)

// MaxDataBytes is the largest data payload one record line carries.
const MaxDataBytes = 32

const (
	recData = 0x00
	recEOF  = 0x01
)

func checksum(length byte, addr uint16, recType byte, data []byte) byte {
	sum := int(length) + int(addr>>8) + int(addr&0xFF) + int(recType)
	for _, b := range data {
		sum += int(b)
	}
	return byte(-sum)
}

func writeRecord(w io.Writer, recType byte, addr uint16, data []byte) error {
	var b strings.Builder
	b.WriteByte(':')
	hex.FormatByte(&b, byte(len(data)))
	hex.FormatByte(&b, byte(addr>>8))
	hex.FormatByte(&b, byte(addr))
	hex.FormatByte(&b, recType)
	for _, by := range data {
		hex.FormatByte(&b, by)
	}
	hex.FormatByte(&b, checksum(byte(len(data)), addr, recType, data))
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteData emits data as one or more type-00 records starting at addr,
// split into chunks of at most MaxDataBytes bytes. addr must fit in 16
// bits; WriteData returns an error for a span that would wrap past
// 0xFFFF.
func WriteData(w io.Writer, addr uint32, data []byte) error {
	if addr > 0xFFFF || addr+uint32(len(data)) > 0x10000 {
		return fmt.Errorf("ihex: address range %#x+%d exceeds 16-bit record addressing", addr, len(data))
	}
	for off := 0; off < len(data); off += MaxDataBytes {
		end := off + MaxDataBytes
		if end > len(data) {
			end = len(data)
		}
		if err := writeRecord(w, recData, uint16(addr)+uint16(off), data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// WriteEOF emits the standard `:00000001FF` end-of-file record.
func WriteEOF(w io.Writer) error {
	return writeRecord(w, recEOF, 0, nil)
}

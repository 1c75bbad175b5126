/*
 * ucsim - Error classification tree: parent-child, suppressible, never fatal.
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

// Package errors implements the simulator's non-fatal error channel: a
// registered tree of error kinds, each with an optional parent and a
// suppressed flag, printed through log/slog rather than returned or
// panicked. Nothing raised here ever stops the simulation; reset is
// always available.
package errors

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind identifies one node of the classification tree.
type Kind int

// Built-in kinds every MCU registers at construction.
const (
	KindInvalidAddress Kind = iota
	KindNonDecoded
	KindConfig
	KindVCD
	KindDebugger
	firstUserKind
)

type node struct {
	name       string
	parent     Kind
	hasParent  bool
	suppressed bool
}

// Tree is a registered hierarchy of error kinds. One Tree is owned by
// each MCU; error kinds from peripherals and subsystems are registered
// into it at construction time, mirroring the source's global error
// registries but scoped to a single simulation context instead of
// process-wide globals.
type Tree struct {
	mu    sync.Mutex
	log   *slog.Logger
	nodes map[Kind]*node
	next  Kind
}

// NewTree creates a tree with the built-in kinds already registered,
// logging through log.
func NewTree(log *slog.Logger) *Tree {
	t := &Tree{
		log:   log,
		nodes: make(map[Kind]*node),
		next:  firstUserKind,
	}
	t.nodes[KindInvalidAddress] = &node{name: "invalid_address"}
	t.nodes[KindNonDecoded] = &node{name: "non_decoded"}
	t.nodes[KindConfig] = &node{name: "config"}
	t.nodes[KindVCD] = &node{name: "vcd"}
	t.nodes[KindDebugger] = &node{name: "debugger"}
	return t
}

// Register adds a new kind named name under parent (or as a root if
// parent is -1), returning the Kind to pass to Raise.
func (t *Tree) Register(parent Kind, name string) Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := t.next
	t.next++
	n := &node{name: name}
	if parent >= 0 {
		n.parent = parent
		n.hasParent = true
	}
	t.nodes[k] = n
	return k
}

// Suppress toggles whether Raise prints for kind (and does not affect
// its children or parent).
func (t *Tree) Suppress(kind Kind, suppressed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[kind]; ok {
		n.suppressed = suppressed
	}
}

func (t *Tree) name(kind Kind) string {
	if n, ok := t.nodes[kind]; ok {
		return n.name
	}
	return "unknown"
}

func (t *Tree) path(kind Kind) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[kind]
	if !ok {
		return "unknown"
	}
	p := n.name
	for n.hasParent {
		parent, ok := t.nodes[n.parent]
		if !ok {
			break
		}
		n = parent
		p = n.name + "." + p
	}
	return p
}

func (t *Tree) isSuppressed(kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[kind]
	return ok && n.suppressed
}

// Raise reports a formatted error of the given kind. It never returns
// an error value and never panics: callers that want the zero-value
// behavior (a failed read returning 0, a dropped write) arrange that
// themselves before or after calling Raise.
func (t *Tree) Raise(kind Kind, format string, args ...any) {
	if t.isSuppressed(kind) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	t.log.Error(msg, slog.String("kind", t.path(kind)))
}

// InvalidAddress implements addrspace.ErrorSink.
func (t *Tree) InvalidAddress(space string, addr uint32) {
	t.Raise(KindInvalidAddress, "%s: address %#x out of range", space, addr)
}

// NonDecoded implements addrspace.ErrorSink.
func (t *Tree) NonDecoded(space string, addr uint32) {
	t.Raise(KindNonDecoded, "%s: address %#x not decoded", space, addr)
}

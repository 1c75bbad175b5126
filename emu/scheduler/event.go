/*
 * ucsim - One-shot virtual-time event queue.
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

package scheduler

// Callback runs when a scheduled event's relative time reaches zero.
type Callback func(arg int)

// event is one entry of the doubly-linked, relative-time event list:
// each node's time field holds the cycle count since the PREVIOUS
// node fires, not an absolute time, so Advance only ever has to
// decrement the head.
type event struct {
	time       int64
	owner      any
	cb         Callback
	arg        int
	prev, next *event
}

// EventQueue is a one-shot event list ordered by relative time, the
// same shape as the source's event scheduler: AddEvent inserts in
// sorted position rewriting the deltas on either side, CancelEvent
// splices an entry out and folds its remaining delta into its
// successor, and Advance walks the head firing every event whose
// delta has reached zero.
type EventQueue struct {
	head, tail *event
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue { return &EventQueue{} }

// AddEvent schedules cb to run in delta cycles, owned by owner (so a
// later CancelEvent(owner, arg) can find it again) with arg passed
// through to cb. A delta of 0 runs cb immediately and returns without
// queuing anything.
func (q *EventQueue) AddEvent(owner any, cb Callback, delta int64, arg int) {
	if delta <= 0 {
		cb(arg)
		return
	}
	ev := &event{time: delta, owner: owner, cb: cb, arg: arg}

	cur := q.head
	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return
		}
		ev.time -= cur.time
		cur = cur.next
	}
	ev.prev = q.tail
	if q.tail != nil {
		q.tail.next = ev
	} else {
		q.head = ev
	}
	q.tail = ev
}

// CancelEvent removes the first queued event owned by owner with the
// given arg, folding its remaining delta into the following entry so
// absolute fire times of later events are preserved.
func (q *EventQueue) CancelEvent(owner any, arg int) {
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.owner != owner || cur.arg != arg {
			continue
		}
		if cur.next != nil {
			cur.next.time += cur.time
			cur.next.prev = cur.prev
		} else {
			q.tail = cur.prev
		}
		if cur.prev != nil {
			cur.prev.next = cur.next
		} else {
			q.head = cur.next
		}
		return
	}
}

// Advance moves virtual time forward by cycles, firing and dequeuing
// every event whose cumulative delta has reached zero.
func (q *EventQueue) Advance(cycles int64) {
	if q.head == nil {
		return
	}
	q.head.time -= cycles
	for q.head != nil && q.head.time <= 0 {
		fired := q.head
		q.head = fired.next
		if q.head != nil {
			q.head.prev = nil
			q.head.time += fired.time // carry any overshoot into the next delta.
		} else {
			q.tail = nil
		}
		fired.cb(fired.arg)
	}
}

// Pending reports whether any event is still queued.
func (q *EventQueue) Pending() bool { return q.head != nil }

// Copyright (c) 2020 omSquare s.r.o.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zi2c

import (
	"container/heap"
	"context"
	"time"

	"github.com/pkg/errors"
)

// Sim is a discrete-event simulation of an open-drain bus on virtual
// time. The master is the only blocking task: its Sleep and WaitRising
// calls pump the event queue, so everything a simulated slave does runs
// deterministically inside those suspension points.
//
// Wires, pins and scheduled callbacks must all belong to the same Sim,
// and the Master must use the Sim as its Clock.
type Sim struct {
	now   time.Duration
	queue eventQueue
	seq   int
}

// NewSim creates an empty simulation at time zero.
func NewSim() *Sim {
	return &Sim{}
}

// Now returns the current virtual time.
func (s *Sim) Now() time.Duration {
	return s.now
}

// After schedules fn to run once d of virtual time has passed.
func (s *Sim) After(d time.Duration, fn func()) {
	heap.Push(&s.queue, &event{at: s.now + d, seq: s.seq, fn: fn})
	s.seq++
}

// Sleep advances virtual time by d, running every event that falls due
// on the way. It implements Clock.
func (s *Sim) Sleep(ctx context.Context, d time.Duration) error {
	target := s.now + d

	for len(s.queue) > 0 && s.queue[0].at <= target {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.step()
	}

	s.now = target
	return ctx.Err()
}

// Wire creates a new open-drain wire, pulled up to 1 while no attached
// pin drives it low.
func (s *Sim) Wire(name string) *Wire {
	return &Wire{sim: s, name: name, level: true}
}

// step runs the earliest pending event.
func (s *Sim) step() {
	e := heap.Pop(&s.queue).(*event)
	if e.at > s.now {
		s.now = e.at
	}
	e.fn()
}

type event struct {
	at  time.Duration
	seq int // keeps events scheduled for the same instant in order
	fn  func()
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Wire is one simulated bus wire. Its resolved level is the logical AND
// of all attached drivers, the way a pulled-up open-drain line settles.
type Wire struct {
	sim   *Sim
	name  string
	drive []bool
	level bool
	watch []func(level bool)
	edges int
}

// Pin attaches a new driver to the wire, initially released, and
// returns it. The pin implements Line against this wire.
func (w *Wire) Pin() *Pin {
	w.drive = append(w.drive, true)
	return &Pin{w: w, idx: len(w.drive) - 1}
}

// Watch registers fn to run on every resolved level change. Callbacks
// run synchronously inside the Drive call that caused the edge.
func (w *Wire) Watch(fn func(level bool)) {
	w.watch = append(w.watch, fn)
}

// Level returns the resolved wire level.
func (w *Wire) Level() bool {
	return w.level
}

// Edges returns the number of resolved level transitions seen so far.
func (w *Wire) Edges() int {
	return w.edges
}

func (w *Wire) resolve() {
	level := true
	for _, d := range w.drive {
		level = level && d
	}

	if level == w.level {
		return
	}

	w.level = level
	w.edges++
	for _, fn := range w.watch {
		fn(level)
	}
}

// Pin is a single participant's tap on a Wire.
type Pin struct {
	w   *Wire
	idx int
}

// Drive sets this participant's driver. Driving 1 releases the wire;
// the resolved level still stays low while any other driver sinks it.
func (p *Pin) Drive(level bool) {
	p.w.drive[p.idx] = level
	p.w.resolve()
}

// Level reports the resolved wire level, not the driven one.
func (p *Pin) Level() bool {
	return p.w.level
}

// WaitRising pumps the event queue until the wire is sensed high. With
// a positive timeout it gives up after that much virtual time.
func (p *Pin) WaitRising(ctx context.Context, timeout time.Duration) error {
	s := p.w.sim

	deadline := time.Duration(-1)
	if timeout > 0 {
		deadline = s.now + timeout
	}

	for !p.w.level {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(s.queue) == 0 {
			return errors.Errorf("zi2c: simulation stalled waiting for %s to rise", p.w.name)
		}
		if deadline >= 0 && s.queue[0].at > deadline {
			s.now = deadline
			return ErrStretchTimeout
		}
		s.step()
	}

	return nil
}

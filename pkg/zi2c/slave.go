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

import "time"

type slaveState int

const (
	slaveIdle    slaveState = iota // bus released, waiting for START
	slaveAddr                      // shifting in the address byte
	slaveAddrAck                   // ack slot for the address byte
	slaveWrite                     // shifting in a data byte
	slaveWriteAck
	slaveRead    // driving a data byte out
	slaveReadAck // master drives the ack slot
	slaveWait    // not addressed or NACKed, ignore until START/STOP
)

// Slave is a simulated wire-level I2C peripheral. It decodes the bus
// exactly like hardware does: sampling SDA on rising SCL edges and
// changing its own drivers on falling edges.
//
// Mem backs both directions as a register file: the first byte of every
// write sets the register pointer, further bytes are stored from there,
// and reads return bytes from the pointer onward.
type Slave struct {
	sim      *Sim
	sdaWire  *Wire
	sclWire  *Wire
	sda, scl *Pin

	// Addr is the 7-bit address the slave answers to.
	Addr uint8

	// Mem is the register file. A nil or empty Mem discards writes and
	// returns 0xFF on reads.
	Mem []byte

	// NackAddr makes the slave refuse its address byte.
	NackAddr bool

	// NackData makes the slave refuse the n-th data byte of a write
	// (1-based). Zero acknowledges everything.
	NackData int

	// Stretch makes the slave hold SCL low for this long every time a
	// byte completes, inserting wait states the master must ride out.
	Stretch time.Duration

	// Observability for tests and diagnostics.
	Starts    int      // START conditions seen, repeated ones included
	Stops     int      // STOP conditions seen
	AddrBytes []byte   // raw address bytes as sampled off the wire
	Writes    [][]byte // acknowledged data bytes, one slice per write
	ReadAcks  []bool   // master's ack bit after each read byte (true = NACK)

	state   slaveState
	phase   bool // inside an ack slot
	shift   byte
	cur     byte
	nbits   int
	dataIdx int
	ptr     int
	reading bool
	willAck bool
	lastAck bool
	frame   []byte
}

// NewSlave attaches a new simulated peripheral to the given wires.
func NewSlave(s *Sim, sda, scl *Wire, addr uint8) *Slave {
	sl := &Slave{
		sim:     s,
		sdaWire: sda,
		sclWire: scl,
		sda:     sda.Pin(),
		scl:     scl.Pin(),
		Addr:    addr,
	}

	sda.Watch(sl.onSDA)
	scl.Watch(sl.onSCL)

	return sl
}

func (sl *Slave) onSDA(level bool) {
	if !sl.sclWire.Level() {
		// SDA may change freely while SCL is low
		return
	}

	if level {
		sl.onStop()
	} else {
		sl.onStart()
	}
}

func (sl *Slave) onSCL(level bool) {
	if level {
		sl.onRising()
	} else {
		sl.onFalling()
	}
}

// onStart handles a START or repeated START condition.
func (sl *Slave) onStart() {
	log.Debugf("slave %#02x: START", sl.Addr)

	sl.flush()
	sl.Starts++
	sl.state = slaveAddr
	sl.phase = false
	sl.shift = 0
	sl.nbits = 0
	sl.dataIdx = 0
	sl.sda.Drive(true)
}

func (sl *Slave) onStop() {
	log.Debugf("slave %#02x: STOP", sl.Addr)

	sl.flush()
	sl.Stops++
	sl.state = slaveIdle
	sl.sda.Drive(true)
}

// onRising samples SDA while the clock is high.
func (sl *Slave) onRising() {
	bit := sl.sdaWire.Level()

	switch sl.state {
	case slaveAddr:
		sl.shift = sl.shift << 1
		if bit {
			sl.shift |= 1
		}
		sl.nbits++
		if sl.nbits < 8 {
			return
		}

		sl.AddrBytes = append(sl.AddrBytes, sl.shift)
		if sl.shift>>1 != sl.Addr || sl.NackAddr {
			sl.state = slaveWait
			return
		}

		sl.reading = sl.shift&1 != 0
		sl.willAck = true
		sl.state = slaveAddrAck
		sl.phase = false

	case slaveWrite:
		sl.shift = sl.shift << 1
		if bit {
			sl.shift |= 1
		}
		sl.nbits++
		if sl.nbits < 8 {
			return
		}

		sl.dataIdx++
		sl.willAck = !(sl.NackData != 0 && sl.dataIdx == sl.NackData)
		if sl.willAck {
			sl.commit(sl.shift)
		}
		sl.state = slaveWriteAck
		sl.phase = false

	case slaveReadAck:
		sl.lastAck = bit
		sl.ReadAcks = append(sl.ReadAcks, bit)
	}
}

// onFalling is where the slave is allowed to change SDA.
func (sl *Slave) onFalling() {
	switch sl.state {
	case slaveAddrAck, slaveWriteAck:
		if !sl.phase {
			// the ack slot begins: a low bit acknowledges
			sl.phase = true
			sl.sda.Drive(!sl.willAck)
			if sl.willAck {
				sl.stretchClock()
			}
			return
		}

		// the ack slot is over
		sl.phase = false
		sl.sda.Drive(true)
		switch {
		case !sl.willAck:
			sl.state = slaveWait
		case sl.reading:
			sl.state = slaveRead
			sl.beginReadByte()
		default:
			sl.state = slaveWrite
			sl.shift = 0
			sl.nbits = 0
		}

	case slaveRead:
		if sl.nbits < 8 {
			sl.driveBit()
			return
		}
		sl.sda.Drive(true)
		sl.state = slaveReadAck
		sl.stretchClock()

	case slaveReadAck:
		if !sl.lastAck {
			sl.state = slaveRead
			sl.beginReadByte()
			return
		}
		// final NACK, the master is wrapping up
		sl.sda.Drive(true)
		sl.state = slaveWait
	}
}

func (sl *Slave) beginReadByte() {
	sl.cur = 0xFF
	if len(sl.Mem) > 0 {
		sl.cur = sl.Mem[sl.ptr%len(sl.Mem)]
		sl.ptr++
	}
	sl.nbits = 0
	sl.driveBit()
}

func (sl *Slave) driveBit() {
	sl.sda.Drive(sl.cur&(1<<uint(7-sl.nbits)) != 0)
	sl.nbits++
}

// commit records an acknowledged write byte. The first byte of a write
// selects the register pointer.
func (sl *Slave) commit(b byte) {
	sl.frame = append(sl.frame, b)

	if len(sl.Mem) == 0 {
		return
	}
	if sl.dataIdx == 1 {
		sl.ptr = int(b) % len(sl.Mem)
	} else {
		sl.Mem[sl.ptr%len(sl.Mem)] = b
		sl.ptr++
	}
}

func (sl *Slave) flush() {
	if len(sl.frame) == 0 {
		return
	}
	sl.Writes = append(sl.Writes, sl.frame)
	sl.frame = nil
}

func (sl *Slave) stretchClock() {
	if sl.Stretch <= 0 {
		return
	}

	sl.scl.Drive(false)
	sl.sim.After(sl.Stretch, func() { sl.scl.Drive(true) })
}

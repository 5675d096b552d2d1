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

import "context"

// sendBit transmits one bit. SDA may only change while SCL is low; the
// half-bit deadtimes around each transition keep SDA stable relative to
// the clock.
func (m *Master) sendBit(ctx context.Context, b bool) error {
	if !m.active {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}

	m.setSDA(b)
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}

	return m.clockPulse(ctx)
}

// recvBit receives one bit. The master releases SDA so the slave can
// drive it, then samples just before the high phase of SCL.
func (m *Master) recvBit(ctx context.Context) (bool, error) {
	if !m.active {
		if err := m.Start(ctx); err != nil {
			return false, err
		}
	}

	m.setSDA(true)
	if err := m.wait(ctx, m.half); err != nil {
		return false, err
	}
	b := m.sda.Level()

	return b, m.clockPulse(ctx)
}

// clockPulse runs the high phase of SCL for one bit period and pulls
// the clock back low. The bit period must not start counting until SCL
// is actually sensed high: a stretching slave may hold it low past the
// master's release.
func (m *Master) clockPulse(ctx context.Context) error {
	m.setSCL(true)
	if err := m.waitSCLHigh(ctx); err != nil {
		return err
	}
	if err := m.wait(ctx, m.bit); err != nil {
		return err
	}

	m.setSCL(false)
	return m.wait(ctx, m.half)
}

// sendByte transmits b MSB first and reports whether the slave
// acknowledged it (a low ack bit on the wire).
func (m *Master) sendByte(ctx context.Context, b byte) (bool, error) {
	for i := 7; i >= 0; i-- {
		if err := m.sendBit(ctx, b&(1<<uint(i)) != 0); err != nil {
			return false, err
		}
	}

	nack, err := m.recvBit(ctx)
	if err != nil {
		return false, err
	}
	return !nack, nil
}

// recvByte receives one byte MSB first and drives the acknowledgement
// bit the caller decided on (true = NACK, ending a read).
func (m *Master) recvByte(ctx context.Context, nack bool) (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		bit, err := m.recvBit(ctx)
		if err != nil {
			return 0, err
		}
		b <<= 1
		if bit {
			b |= 1
		}
	}

	return b, m.sendBit(ctx, nack)
}

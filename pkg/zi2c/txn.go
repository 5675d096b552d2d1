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

const (
	dirWrite byte = 0
	dirRead  byte = 1
)

// Write transmits data to the device at the given 7-bit address. A NACK
// on the address or any data byte releases the bus, waits two bit
// periods and retries the whole transaction, up to Retries times.
//
// On success the bus is left active so the caller can chain a repeated
// START; end the transaction with Stop.
func (m *Master) Write(ctx context.Context, addr uint8, data []byte) error {
	var cause error

	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			if err := m.backoff(ctx); err != nil {
				return err
			}
		}

		log.Infof("write % x to device at I2C address %#02x", data, addr)
		if err := m.Start(ctx); err != nil {
			return err
		}

		ack, err := m.sendByte(ctx, addr<<1|dirWrite)
		if err != nil {
			return err
		}
		if !ack {
			log.Info("got NACK on I2C address byte for a write operation")
			cause = ErrAddrNack
			continue
		}

		cause = nil
		for _, b := range data {
			ack, err := m.sendByte(ctx, b)
			if err != nil {
				return err
			}
			if !ack {
				// a retry restarts the whole transaction, partial
				// progress is discarded
				log.Info("got NACK on I2C write data bytes")
				cause = ErrDataNack
				break
			}
		}
		if cause == nil {
			return nil
		}
	}

	return m.exhausted(cause)
}

// Read receives count bytes from the device at the given 7-bit address.
// The master acknowledges every byte except the last, which it NACKs to
// signal the end of the read. The address NACK retry policy matches
// Write.
//
// On success the bus is left active; end the transaction with Stop.
func (m *Master) Read(ctx context.Context, addr uint8, count int) ([]byte, error) {
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			if err := m.backoff(ctx); err != nil {
				return nil, err
			}
		}

		log.Infof("read %d bytes from device at I2C address %#02x", count, addr)
		if err := m.Start(ctx); err != nil {
			return nil, err
		}

		ack, err := m.sendByte(ctx, addr<<1|dirRead)
		if err != nil {
			return nil, err
		}
		if !ack {
			log.Info("got NACK on I2C address byte for a read operation")
			continue
		}

		data := make([]byte, 0, count)
		for k := 0; k < count; k++ {
			b, err := m.recvByte(ctx, k == count-1)
			if err != nil {
				return nil, err
			}
			data = append(data, b)
		}
		return data, nil
	}

	return nil, m.exhausted(ErrAddrNack)
}

// backoff releases the bus and waits out the bus free period before the
// next attempt. Each failed attempt consumes exactly one retry unit.
func (m *Master) backoff(ctx context.Context) error {
	log.Info("a new attempt will be made following a received NACK")
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.wait(ctx, m.recovery)
}

func (m *Master) exhausted(cause error) error {
	log.Info("the number of retries due to a received NACK has been exhausted, aborting")
	if m.silent {
		return nil
	}
	return &ExhaustedError{Attempts: m.retries + 1, Cause: cause}
}

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

// Device provides register-oriented access to a single peripheral, the
// way most I2C chips are driven: a write selects the register pointer,
// a repeated-start read fetches from it.
type Device struct {
	m    *Master
	addr uint8
}

// NewDevice binds a register-level view of the peripheral at the given
// 7-bit address to a master.
func NewDevice(m *Master, addr uint8) *Device {
	return &Device{m: m, addr: addr}
}

// WriteReg writes data starting at the given register.
func (d *Device) WriteReg(ctx context.Context, reg uint8, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)

	if err := d.m.Write(ctx, d.addr, buf); err != nil {
		return err
	}
	return d.m.Stop(ctx)
}

// ReadReg reads n bytes starting at the given register. The register
// write leaves the bus active on purpose: the read that follows is
// issued as a repeated START, so no other master can slip in between.
func (d *Device) ReadReg(ctx context.Context, reg uint8, n int) ([]byte, error) {
	if err := d.m.Write(ctx, d.addr, []byte{reg}); err != nil {
		return nil, err
	}

	data, err := d.m.Read(ctx, d.addr, n)
	if err != nil {
		return nil, err
	}

	if err := d.m.Stop(ctx); err != nil {
		return nil, err
	}
	return data, nil
}

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
	"bytes"
	"context"
	"errors"
	"testing"
)

// TestDeviceRoundTrip writes a register block and reads it back through
// the repeated-start sequence.
func TestDeviceRoundTrip(t *testing.T) {
	b, m := newTestBus(t, Config{Retries: 2})
	ctx := context.Background()

	d := NewDevice(m, 0x50)

	if err := d.WriteReg(ctx, 0x20, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("WriteReg failed: %v", err)
	}

	data, err := d.ReadReg(ctx, 0x20, 3)
	if err != nil {
		t.Fatalf("ReadReg failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadReg returned % x, want 01 02 03", data)
	}

	// the pointer write chains into the read via a repeated START
	if b.slave.Starts != 3 {
		t.Errorf("observed %d START conditions, want 3", b.slave.Starts)
	}
	if b.slave.Stops != 2 {
		t.Errorf("observed %d STOP conditions, want 2", b.slave.Stops)
	}
	if m.Active() {
		t.Errorf("bus left active after ReadReg")
	}
}

// TestDeviceAbsent checks that the typed failure travels up through the
// register helper.
func TestDeviceAbsent(t *testing.T) {
	_, m := newTestBus(t, Config{Retries: 1})

	d := NewDevice(m, 0x23) // nobody home

	err := d.WriteReg(context.Background(), 0x00, []byte{0x01})
	if !errors.Is(err, ErrAddrNack) {
		t.Errorf("WriteReg returned %v, want ErrAddrNack cause", err)
	}
}

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
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgeSlice bounds a single WaitForEdge call so context cancellation is
// honored even while a slave stretches the clock.
const edgeSlice = 10 * time.Millisecond

// PinLine adapts a periph.io GPIO pin to a bus Line. The pin is used
// open-drain style: driving 0 sinks the wire low, driving 1 releases it
// by reconfiguring the pin as a pulled-up input.
func PinLine(p gpio.PinIO) Line {
	l := &pinLine{pin: p}
	l.Drive(true)
	return l
}

type pinLine struct {
	pin gpio.PinIO
}

func (l *pinLine) Drive(level bool) {
	if level {
		_ = l.pin.In(gpio.PullUp, gpio.BothEdges)
	} else {
		_ = l.pin.Out(gpio.Low)
	}
}

func (l *pinLine) Level() bool {
	return l.pin.Read() == gpio.High
}

func (l *pinLine) WaitRising(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for !l.Level() {
		if err := ctx.Err(); err != nil {
			return err
		}

		slice := edgeSlice
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrStretchTimeout
			}
			if remaining < slice {
				slice = remaining
			}
		}

		l.pin.WaitForEdge(slice)
	}

	return nil
}

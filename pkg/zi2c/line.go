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
)

// Output is the drive side of a bus wire. Driving 1 on an open-drain
// wire means releasing it, never forcing it high.
type Output interface {
	Drive(level bool)
}

// Line is one wire of the bus as seen by the master. The sensed level
// may differ from the last driven level when another participant pulls
// the wire low.
type Line interface {
	Output

	// Level reports the current sensed level of the wire.
	Level() bool

	// WaitRising blocks until the wire is sensed high, observing a
	// rising edge when it is currently low. A non-positive timeout
	// means wait forever.
	WaitRising(ctx context.Context, timeout time.Duration) error
}

// Clock is the time source the master suspends on between line
// transitions. The default is the wall clock; a simulation supplies
// virtual time instead.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

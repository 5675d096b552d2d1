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
	"errors"
	"fmt"
)

var (
	// ErrAddrNack indicates that no device acknowledged its address.
	ErrAddrNack = errors.New("zi2c: address byte not acknowledged")

	// ErrDataNack indicates that the device refused a written data byte.
	ErrDataNack = errors.New("zi2c: data byte not acknowledged")

	// ErrStretchTimeout indicates that a slave held SCL low for longer
	// than the configured stretch timeout.
	ErrStretchTimeout = errors.New("zi2c: clock stretch wait timed out")
)

// ExhaustedError is returned by Write and Read when a NACK persisted
// through the whole retry budget. Cause is ErrAddrNack or ErrDataNack.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("zi2c: giving up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

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
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultFreq is the bus frequency used when the configuration
	// leaves it zero.
	DefaultFreq = 400 * physic.KiloHertz

	// DefaultRetries is the number of retries after a NACK used by
	// DefaultConfig.
	DefaultRetries = 2

	// Version contains the zen-i2c version.
	Version = "0.1.0"
)

var log = logrus.New()

// SetLogger replaces the logger the driver reports diagnostics on. A
// failed transaction in silent mode is visible nowhere else.
func SetLogger(l *logrus.Logger) {
	log = l
}

// Config describes the wiring and behavior of a Master.
type Config struct {
	// SDA and SCL are the two bus wires. Both are required.
	SDA Line
	SCL Line

	// SDAOut and SCLOut are optional separate drive signals. When set,
	// all writes go through them while SDA/SCL serve sensing only.
	SDAOut Output
	SCLOut Output

	// Freq is the target bit frequency. Zero selects DefaultFreq.
	Freq physic.Frequency

	// Retries is the number of times a transaction is retried after a
	// NACK. Negative values are rejected.
	Retries int

	// StretchTimeout bounds every wait for SCL to rise. Zero means
	// wait forever, which is what the I2C clock-stretching contract
	// calls for.
	StretchTimeout time.Duration

	// Silent restores the legacy failure mode: Write and Read report
	// retry exhaustion only through the log.
	Silent bool

	// Clock is the time source. Nil selects the wall clock. A Master
	// driving simulated wires must use the simulation's clock.
	Clock Clock
}

// DefaultConfig returns a Config for the given wires with the standard
// 400 kHz, 2 retry setup.
func DefaultConfig(sda, scl Line) Config {
	return Config{SDA: sda, SCL: scl, Freq: DefaultFreq, Retries: DefaultRetries}
}

// Master is a software I2C bus master. It owns the whole protocol stack
// from line transitions up to addressed read/write transactions.
//
// A Master is strictly sequential; concurrent use from multiple
// goroutines is not supported.
type Master struct {
	sda, scl       Line
	sdaOut, sclOut Output

	bit      time.Duration // full bit period
	half     time.Duration // half bit period
	recovery time.Duration // bus free delay after an aborted transaction

	retries int
	stretch time.Duration
	silent  bool
	clock   Clock

	active bool
}

// New creates a Master for the given configuration and releases both
// bus wires.
func New(cfg Config) (*Master, error) {
	if cfg.SDA == nil || cfg.SCL == nil {
		return nil, errors.New("zi2c: both SDA and SCL lines are required")
	}
	if cfg.Freq < 0 {
		return nil, errors.New("zi2c: bus frequency must be positive")
	}
	if cfg.Retries < 0 {
		return nil, errors.New("zi2c: retry count must not be negative")
	}

	if cfg.Freq == 0 {
		cfg.Freq = DefaultFreq
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}

	bit := cfg.Freq.Period()

	m := &Master{
		sda:      cfg.SDA,
		scl:      cfg.SCL,
		sdaOut:   cfg.SDAOut,
		sclOut:   cfg.SCLOut,
		bit:      bit,
		half:     bit / 2,
		recovery: 2 * bit,
		retries:  cfg.Retries,
		stretch:  cfg.StretchTimeout,
		silent:   cfg.Silent,
		clock:    cfg.Clock,
	}

	// idle bus, both wires released
	m.setSDA(true)
	m.setSCL(true)

	log.Infof("I2C master configuration: %s, %d retries", cfg.Freq, cfg.Retries)

	return m, nil
}

// Active reports whether the bus is between a START and the next STOP.
func (m *Master) Active() bool {
	return m.active
}

// Start issues a START condition. On an active bus this produces a
// repeated START, chaining a new transaction without releasing the bus.
func (m *Master) Start(ctx context.Context) error {
	if m.active {
		// get SDA back high while SCL is low, then let SCL rise
		m.setSDA(true)
		if err := m.wait(ctx, m.half); err != nil {
			return err
		}
		m.setSCL(true)
		if err := m.waitSCLHigh(ctx); err != nil {
			return err
		}
		if err := m.wait(ctx, m.half); err != nil {
			return err
		}
	}

	// SDA falls while SCL is high
	m.setSDA(false)
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}
	m.setSCL(false)
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}

	m.active = true
	return nil
}

// Stop issues a STOP condition, releasing the bus. It is a no-op when
// the bus is not active.
func (m *Master) Stop(ctx context.Context) error {
	if !m.active {
		return nil
	}

	m.setSDA(false)
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}
	m.setSCL(true)
	if err := m.waitSCLHigh(ctx); err != nil {
		return err
	}
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}

	// SDA rises while SCL is high
	m.setSDA(true)
	if err := m.wait(ctx, m.half); err != nil {
		return err
	}

	m.active = false
	return nil
}

func (m *Master) setSDA(level bool) {
	if m.sdaOut != nil {
		m.sdaOut.Drive(level)
	} else {
		m.sda.Drive(level)
	}
}

func (m *Master) setSCL(level bool) {
	if m.sclOut != nil {
		m.sclOut.Drive(level)
	} else {
		m.scl.Drive(level)
	}
}

func (m *Master) wait(ctx context.Context, d time.Duration) error {
	return m.clock.Sleep(ctx, d)
}

// waitSCLHigh blocks until SCL is actually sensed high. A slave may
// hold the wire low indefinitely to insert wait states.
func (m *Master) waitSCLHigh(ctx context.Context) error {
	for !m.scl.Level() {
		if err := m.scl.WaitRising(ctx, m.stretch); err != nil {
			return err
		}
	}
	return nil
}
